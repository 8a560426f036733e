package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
)

// --- Input/Output types ---

// EvaluateInput defines parameters for the accessgate_evaluate tool.
// Levels are passed by name so the schema stays a plain string.
type EvaluateInput struct {
	TenantID     string         `json:"tenant_id" jsonschema:"tenant that owns the resource"`
	UserID       string         `json:"user_id" jsonschema:"requesting user"`
	ResourceType string         `json:"resource_type" jsonschema:"resource type (case_file/evidence/...)"`
	ResourceID   string         `json:"resource_id" jsonschema:"resource identifier"`
	Action       string         `json:"action" jsonschema:"action (read/list/write/export/...)"`
	Clearance    string         `json:"clearance" jsonschema:"claimed clearance (none/basic/standard/elevated/high/top/compartmented)"`
	Sensitivity  string         `json:"sensitivity" jsonschema:"resource sensitivity (public/internal/restricted/confidential/secret/top_secret)"`
	Attributes   map[string]any `json:"attributes,omitempty" jsonschema:"resource attributes referenced by policy conditions"`
	SourceIP     string         `json:"source_ip,omitempty" jsonschema:"client address"`
	Explain      bool           `json:"explain,omitempty" jsonschema:"include a per-policy trace"`
}

// EvaluateOutput contains the decision.
type EvaluateOutput struct {
	Decision       string   `json:"decision"`
	Reason         string   `json:"reason"`
	PolicyID       string   `json:"policy_id,omitempty"`
	RedactedFields []string `json:"redacted_fields,omitempty"`
	AuditEntryID   string   `json:"audit_entry_id,omitempty"`
	Trace          []string `json:"trace,omitempty"`
}

// VerifyInput defines parameters for the accessgate_verify_audit tool.
type VerifyInput struct {
	Persisted bool `json:"persisted,omitempty" jsonschema:"verify the full stored history instead of the in-memory window"`
}

type VerifyOutput struct {
	Valid      bool   `json:"valid"`
	Entries    int    `json:"entries"`
	Error      string `json:"error,omitempty"`
	ErrorIndex int    `json:"error_index"`
}

// AuditLogInput defines parameters for the accessgate_audit_log tool.
type AuditLogInput struct {
	TenantID string `json:"tenant_id,omitempty" jsonschema:"only this tenant"`
	UserID   string `json:"user_id,omitempty" jsonschema:"only this user"`
	Action   string `json:"action,omitempty" jsonschema:"only this action"`
	Decision string `json:"decision,omitempty" jsonschema:"only this decision (allow/deny/conditional/audit)"`
	Since    string `json:"since,omitempty" jsonschema:"only entries newer than this duration ago (e.g. 1h)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum entries, default 50"`
}

type AuditLogOutput struct {
	Entries []AuditItem `json:"entries"`
}

// AuditItem is one audit entry without request/response details.
type AuditItem struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	Resource  string `json:"resource"`
	Decision  string `json:"decision"`
	PolicyID  string `json:"policy_id,omitempty"`
}

// CrossDomainInput defines parameters for the accessgate_cross_domain tool.
type CrossDomainInput struct {
	SourceTenant string `json:"source_tenant" jsonschema:"tenant requesting access"`
	TargetTenant string `json:"target_tenant" jsonschema:"tenant that owns the data"`
}

type CrossDomainOutput struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// RedactInput defines parameters for the accessgate_redact tool.
type RedactInput struct {
	Clearance string         `json:"clearance" jsonschema:"viewer clearance"`
	Payload   map[string]any `json:"payload" jsonschema:"JSON object to redact"`
}

type RedactOutput struct {
	Payload map[string]any `json:"payload"`
}

// MetricsInput is empty.
type MetricsInput struct{}

// --- Handlers ---

const defaultAuditLimit = 50

// requireLevel rejects an omitted level name; an empty level must never
// decode to the lowest tier.
func requireLevel(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", model.ErrInvalidRequest, field)
	}
	return nil
}

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	if err := errors.Join(requireLevel("clearance", input.Clearance), requireLevel("sensitivity", input.Sensitivity)); err != nil {
		return nil, EvaluateOutput{}, err
	}
	cl, err := model.ParseClearance(input.Clearance)
	if err != nil {
		return nil, EvaluateOutput{}, err
	}
	sens, err := model.ParseSensitivity(input.Sensitivity)
	if err != nil {
		return nil, EvaluateOutput{}, err
	}

	ar := &model.AccessRequest{
		TenantID:            input.TenantID,
		UserID:              input.UserID,
		ResourceType:        input.ResourceType,
		ResourceID:          input.ResourceID,
		Action:              input.Action,
		RequesterClearance:  cl,
		ResourceSensitivity: sens,
		Attributes:          input.Attributes,
		SourceIP:            input.SourceIP,
	}

	eval := s.gw.EvaluateAccess
	if input.Explain {
		eval = s.gw.ExplainAccess
	}
	res, err := eval(ctx, ar)
	if err != nil && !errors.Is(err, access.ErrAuditFailed) {
		return nil, EvaluateOutput{}, err
	}

	out := EvaluateOutput{
		Decision:       string(res.Decision),
		Reason:         res.Reason,
		PolicyID:       res.MatchedPolicyID,
		RedactedFields: res.RedactedFields,
		AuditEntryID:   res.AuditEntryID,
		Trace:          res.Trace,
	}
	if !res.Allowed() {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleVerifyAudit(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	res := s.gw.VerifyAuditChain()
	if input.Persisted {
		res = s.gw.VerifyPersistedAudit()
	}
	out := VerifyOutput{Valid: res.Valid, Entries: res.Entries, Error: res.Error, ErrorIndex: res.ErrorIndex}
	if !res.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleAuditLog(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditLogInput) (*mcpsdk.CallToolResult, AuditLogOutput, error) {
	f := audit.Filter{
		TenantID: input.TenantID,
		UserID:   input.UserID,
		Action:   input.Action,
		Limit:    input.Limit,
	}
	if f.Limit <= 0 {
		f.Limit = defaultAuditLimit
	}
	if input.Decision != "" {
		d, err := model.ParseDecision(input.Decision)
		if err != nil {
			return nil, AuditLogOutput{}, err
		}
		f.Decision = d
	}
	if input.Since != "" {
		dur, err := time.ParseDuration(input.Since)
		if err != nil {
			return nil, AuditLogOutput{}, fmt.Errorf("invalid since: %w", err)
		}
		f.Since = time.Now().Add(-dur)
	}

	entries := s.gw.AuditLog(f)
	out := AuditLogOutput{Entries: make([]AuditItem, len(entries))}
	for i, e := range entries {
		out.Entries[i] = AuditItem{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			TenantID:  e.TenantID,
			UserID:    e.UserID,
			Action:    e.Action,
			Resource:  e.ResourceType + "/" + e.ResourceID,
			Decision:  string(e.Decision),
			PolicyID:  e.PolicyID,
		}
	}
	return nil, out, nil
}

func (s *Server) handleCrossDomain(ctx context.Context, req *mcpsdk.CallToolRequest, input CrossDomainInput) (*mcpsdk.CallToolResult, CrossDomainOutput, error) {
	if input.SourceTenant == "" || input.TargetTenant == "" {
		return nil, CrossDomainOutput{}, fmt.Errorf("source_tenant and target_tenant are required")
	}
	ok, reason := s.gw.ExplainCrossDomain(input.SourceTenant, input.TargetTenant)
	return nil, CrossDomainOutput{Allowed: ok, Reason: reason}, nil
}

func (s *Server) handleRedact(ctx context.Context, req *mcpsdk.CallToolRequest, input RedactInput) (*mcpsdk.CallToolResult, RedactOutput, error) {
	if err := requireLevel("clearance", input.Clearance); err != nil {
		return nil, RedactOutput{}, err
	}
	cl, err := model.ParseClearance(input.Clearance)
	if err != nil {
		return nil, RedactOutput{}, err
	}
	return nil, RedactOutput{Payload: s.gw.Redact(input.Payload, cl)}, nil
}

func (s *Server) handleMetrics(ctx context.Context, req *mcpsdk.CallToolRequest, input MetricsInput) (*mcpsdk.CallToolResult, access.Metrics, error) {
	return nil, s.gw.Metrics(), nil
}
