package accessgatev1

import (
	"time"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
)

// EvaluateRequest is an access request plus an optional per-policy trace.
// The response is a model.AccessResult.
type EvaluateRequest struct {
	model.AccessRequest
	Explain bool `json:"explain,omitempty"`
}

// VerifyRequest selects the retained window (default) or the full
// persisted history. The response is an audit.VerifyResult.
type VerifyRequest struct {
	Persisted bool `json:"persisted,omitempty"`
}

// AuditLogRequest filters retained audit entries.
type AuditLogRequest struct {
	TenantID string         `json:"tenant_id,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	Action   string         `json:"action,omitempty"`
	Decision model.Decision `json:"decision,omitempty"`
	Since    time.Time      `json:"since"`
	Limit    int            `json:"limit,omitempty"`
}

// Filter converts the request to an audit.Filter.
func (r AuditLogRequest) Filter() audit.Filter {
	return audit.Filter{
		TenantID: r.TenantID,
		UserID:   r.UserID,
		Action:   r.Action,
		Decision: r.Decision,
		Since:    r.Since,
		Limit:    r.Limit,
	}
}

type AuditLogResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

type CrossDomainRequest struct {
	SourceTenant string `json:"source_tenant"`
	TargetTenant string `json:"target_tenant"`
}

type CrossDomainResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// RedactRequest asks for payload as seen by a holder of Clearance.
type RedactRequest struct {
	Clearance model.Clearance `json:"clearance"`
	Payload   map[string]any  `json:"payload"`
}

type RedactResponse struct {
	Payload map[string]any `json:"payload"`
}
