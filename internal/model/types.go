package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidClearance   = errors.New("invalid clearance level")
	ErrInvalidSensitivity = errors.New("invalid sensitivity level")
	ErrInvalidEffect      = errors.New("invalid policy effect")
	ErrInvalidRequest     = errors.New("invalid access request")
)

// Clearance is the ordered trust tier assigned to a user.
type Clearance int

const (
	ClearanceNone Clearance = iota
	ClearanceBasic
	ClearanceStandard
	ClearanceElevated
	ClearanceHigh
	ClearanceTop
	ClearanceCompartmented
)

var clearanceNames = [...]string{
	ClearanceNone:          "none",
	ClearanceBasic:         "basic",
	ClearanceStandard:      "standard",
	ClearanceElevated:      "elevated",
	ClearanceHigh:          "high",
	ClearanceTop:           "top",
	ClearanceCompartmented: "compartmented",
}

// ParseClearance maps a canonical name to a Clearance.
// Unknown names are an error, never a default.
func ParseClearance(s string) (Clearance, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range clearanceNames {
		if n == name {
			return Clearance(i), nil
		}
	}
	return ClearanceNone, fmt.Errorf("%w: %q", ErrInvalidClearance, s)
}

// Valid reports whether c is one of the defined levels.
func (c Clearance) Valid() bool {
	return c >= ClearanceNone && c <= ClearanceCompartmented
}

// Rank returns the comparable integer for c.
func (c Clearance) Rank() int { return int(c) }

func (c Clearance) String() string {
	if !c.Valid() {
		return fmt.Sprintf("clearance(%d)", int(c))
	}
	return clearanceNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Clearance) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClearance, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Clearance) UnmarshalText(b []byte) error {
	v, err := ParseClearance(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Sensitivity is the ordered confidentiality tier assigned to a resource.
type Sensitivity int

const (
	SensPublic Sensitivity = iota
	SensInternal
	SensRestricted
	SensConfidential
	SensSecret
	SensTopSecret
)

var sensitivityNames = [...]string{
	SensPublic:       "public",
	SensInternal:     "internal",
	SensRestricted:   "restricted",
	SensConfidential: "confidential",
	SensSecret:       "secret",
	SensTopSecret:    "top_secret",
}

// ParseSensitivity maps a canonical name to a Sensitivity.
func ParseSensitivity(s string) (Sensitivity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range sensitivityNames {
		if n == name {
			return Sensitivity(i), nil
		}
	}
	return SensPublic, fmt.Errorf("%w: %q", ErrInvalidSensitivity, s)
}

// Valid reports whether s is one of the defined levels.
func (s Sensitivity) Valid() bool {
	return s >= SensPublic && s <= SensTopSecret
}

// Rank returns the comparable integer for s.
func (s Sensitivity) Rank() int { return int(s) }

func (s Sensitivity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("sensitivity(%d)", int(s))
	}
	return sensitivityNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Sensitivity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSensitivity, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Sensitivity) UnmarshalText(b []byte) error {
	v, err := ParseSensitivity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CanAccess is the clearance gate: a user may only see resources whose
// sensitivity rank does not exceed their clearance rank.
func CanAccess(c Clearance, s Sensitivity) bool {
	return c.Rank() >= s.Rank()
}

// Decision is the evaluation outcome. Policy effects share the same values.
type Decision string

const (
	Allow       Decision = "allow"
	Deny        Decision = "deny"
	Conditional Decision = "conditional"
	Audit       Decision = "audit"
)

// ParseDecision maps a string to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case Allow, Deny, Conditional, Audit:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEffect, s)
}

// AccessRequest is one authorization question. It is never persisted on its own.
type AccessRequest struct {
	TenantID               string         `json:"tenant_id"`
	UserID                 string         `json:"user_id"`
	ResourceType           string         `json:"resource_type"`
	ResourceID             string         `json:"resource_id"`
	Action                 string         `json:"action"`
	RequesterClearance     Clearance      `json:"requester_clearance"`
	RequesterRoles         []string       `json:"requester_roles,omitempty"`
	RequesterJurisdictions []string       `json:"requester_jurisdictions,omitempty"`
	Attributes             map[string]any `json:"attributes,omitempty"`
	ResourceSensitivity    Sensitivity    `json:"resource_sensitivity"`
	SourceIP               string         `json:"source_ip,omitempty"`
	Timestamp              time.Time      `json:"timestamp"`
}

// Validate rejects malformed requests. A rejected request is an error for
// the caller, not a Deny decision.
func (r *AccessRequest) Validate() error {
	switch {
	case r.TenantID == "":
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidRequest)
	case r.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	case r.Action == "":
		return fmt.Errorf("%w: action is required", ErrInvalidRequest)
	case !r.RequesterClearance.Valid():
		return fmt.Errorf("%w: %w: %d", ErrInvalidRequest, ErrInvalidClearance, int(r.RequesterClearance))
	case !r.ResourceSensitivity.Valid():
		return fmt.Errorf("%w: %w: %d", ErrInvalidRequest, ErrInvalidSensitivity, int(r.ResourceSensitivity))
	}
	return nil
}

// AccessResult is the output of one evaluation.
type AccessResult struct {
	Decision            Decision  `json:"decision"`
	MatchedPolicyID     string    `json:"matched_policy_id,omitempty"`
	MatchedPolicyName   string    `json:"matched_policy_name,omitempty"`
	Reason              string    `json:"reason"`
	ConditionsEvaluated int       `json:"conditions_evaluated"`
	ConditionsMatched   int       `json:"conditions_matched"`
	RedactionApplied    bool      `json:"redaction_applied"`
	RedactedFields      []string  `json:"redacted_fields,omitempty"`
	AuditLogged         bool      `json:"audit_logged"`
	AuditEntryID        string    `json:"audit_entry_id,omitempty"`
	EvaluatedAt         time.Time `json:"evaluated_at"`
	Trace               []string  `json:"trace,omitempty"`
}

// Allowed is true only for an explicit Allow. Callers must never infer
// Allow from the absence of an error.
func (r AccessResult) Allowed() bool {
	return r.Decision == Allow
}
