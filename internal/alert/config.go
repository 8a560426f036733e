// Package alert posts audit decisions to webhooks. A Dispatcher is an
// audit.Sink: it sees every committed entry and fires matching webhooks in
// the background.
package alert

import (
	"fmt"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
)

// Formats accepted in Config.Format.
const (
	FormatGeneric   = "generic"
	FormatSlack     = "slack"
	FormatPagerDuty = "pagerduty"
)

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `mapstructure:"url" yaml:"url" json:"url"`
	Format  string            `mapstructure:"format" yaml:"format" json:"format"`
	Events  []string          `mapstructure:"events" yaml:"events" json:"events"` // decisions, e.g. ["deny"]
	Headers map[string]string `mapstructure:"headers" yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Validate checks the URL, format and event names.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("alert: url is required")
	}
	switch c.Format {
	case "", FormatGeneric, FormatSlack, FormatPagerDuty:
	default:
		return fmt.Errorf("alert %s: unknown format %q", c.URL, c.Format)
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("alert %s: at least one event is required", c.URL)
	}
	for _, e := range c.Events {
		if _, err := model.ParseDecision(e); err != nil {
			return fmt.Errorf("alert %s: %w", c.URL, err)
		}
	}
	return nil
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp   string `json:"timestamp"`
	AuditID     string `json:"audit_id"`
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	Action      string `json:"action"`
	Resource    string `json:"resource"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason"`
	Sensitivity string `json:"sensitivity,omitempty"`
	PolicyID    string `json:"policy_id,omitempty"`
	ChainHash   string `json:"chain_hash"`
}

// EventFromEntry builds an alert from a committed audit entry.
func EventFromEntry(e audit.Entry) Event {
	ev := Event{
		Timestamp: e.Timestamp.UTC().Format(audit.TimestampFormat),
		AuditID:   e.ID,
		TenantID:  e.TenantID,
		UserID:    e.UserID,
		Action:    e.Action,
		Resource:  e.ResourceType + "/" + e.ResourceID,
		Decision:  string(e.Decision),
		PolicyID:  e.PolicyID,
		ChainHash: e.ChainHash,
	}
	if r, ok := e.ResponseDetails["reason"].(string); ok {
		ev.Reason = r
	}
	if s, ok := e.RequestDetails["resource_sensitivity"].(string); ok {
		ev.Sensitivity = s
	}
	return ev
}
