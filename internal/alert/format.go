package alert

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/accessgate/internal/model"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case FormatSlack:
		return formatSlack(event)
	case FormatPagerDuty:
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("accessgate: %s", event.Decision),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*User:* %s/%s", event.TenantID, event.UserID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Resource:* %s (%s)", event.Resource, event.Action)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Sensitivity:* %s", event.Sensitivity)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    event.AuditID,
		"payload": map[string]any{
			"summary":  fmt.Sprintf("accessgate %s: %s/%s %s %s", event.Decision, event.TenantID, event.UserID, event.Action, event.Resource),
			"severity": severityFor(event.Sensitivity),
			"source":   "accessgate",
			"custom_details": map[string]any{
				"tenant_id":  event.TenantID,
				"user_id":    event.UserID,
				"resource":   event.Resource,
				"reason":     event.Reason,
				"policy_id":  event.PolicyID,
				"audit_id":   event.AuditID,
				"chain_hash": event.ChainHash,
			},
		},
	}
	return json.Marshal(payload)
}

// severityFor maps resource sensitivity to a PagerDuty severity.
func severityFor(sensitivity string) string {
	s, err := model.ParseSensitivity(sensitivity)
	if err != nil {
		return "info"
	}
	switch {
	case s >= model.SensSecret:
		return "critical"
	case s >= model.SensConfidential:
		return "error"
	case s >= model.SensRestricted:
		return "warning"
	default:
		return "info"
	}
}
