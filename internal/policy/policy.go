package policy

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/accessgate/internal/model"
)

var (
	ErrNotFound      = errors.New("policy not found")
	ErrExists        = errors.New("policy already exists")
	ErrInvalidPolicy = errors.New("invalid policy")
)

// AttributeType selects where a condition reads its actual value from.
type AttributeType int

const (
	AttrUser AttributeType = iota
	AttrResource
	AttrAction
	AttrEnvironment
	AttrTenant
	AttrJurisdiction
	AttrRole
	AttrClearance
	AttrTime
	AttrLocation
)

var attributeTypeNames = [...]string{
	AttrUser:         "user",
	AttrResource:     "resource",
	AttrAction:       "action",
	AttrEnvironment:  "environment",
	AttrTenant:       "tenant",
	AttrJurisdiction: "jurisdiction",
	AttrRole:         "role",
	AttrClearance:    "clearance",
	AttrTime:         "time",
	AttrLocation:     "location",
}

// ParseAttributeType maps a name to an AttributeType.
func ParseAttributeType(s string) (AttributeType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range attributeTypeNames {
		if n == name {
			return AttributeType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown attribute type %q", ErrInvalidPolicy, s)
}

// Valid reports whether t is a defined attribute type.
func (t AttributeType) Valid() bool {
	return t >= AttrUser && t <= AttrLocation
}

func (t AttributeType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("attribute(%d)", int(t))
	}
	return attributeTypeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t AttributeType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: attribute type %d", ErrInvalidPolicy, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *AttributeType) UnmarshalText(b []byte) error {
	v, err := ParseAttributeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Operator is a condition comparator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
)

// Valid reports whether op is one of the defined comparators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpIn, OpNotIn,
		OpGreaterThan, OpLessThan, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// PolicyCondition is one attribute test inside a policy.
type PolicyCondition struct {
	AttributeType AttributeType `yaml:"attribute_type" json:"attribute_type"`
	AttributeName string        `yaml:"attribute_name" json:"attribute_name"`
	Operator      Operator      `yaml:"operator" json:"operator"`
	Value         any           `yaml:"value" json:"value"`
	Negate        bool          `yaml:"negate,omitempty" json:"negate,omitempty"`
}

// AccessPolicy is an ABAC rule. Lower Priority is evaluated first and wins.
// An empty TenantID makes the policy global.
type AccessPolicy struct {
	ID                    string            `yaml:"id" json:"id"`
	Name                  string            `yaml:"name" json:"name"`
	Description           string            `yaml:"description,omitempty" json:"description,omitempty"`
	TenantID              string            `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	Priority              int               `yaml:"priority" json:"priority"`
	Effect                model.Decision    `yaml:"effect" json:"effect"`
	RequiredClearance     model.Clearance   `yaml:"required_clearance,omitempty" json:"required_clearance"`
	RequiredRoles         []string          `yaml:"required_roles,omitempty" json:"required_roles,omitempty"`
	RequiredJurisdictions []string          `yaml:"required_jurisdictions,omitempty" json:"required_jurisdictions,omitempty"`
	AllowedActions        []string          `yaml:"allowed_actions,omitempty" json:"allowed_actions,omitempty"`
	DeniedActions         []string          `yaml:"denied_actions,omitempty" json:"denied_actions,omitempty"`
	ResourcePatterns      []string          `yaml:"resource_patterns,omitempty" json:"resource_patterns,omitempty"`
	Conditions            []PolicyCondition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Enabled               bool              `yaml:"enabled" json:"enabled"`
	AuditOnMatch          bool              `yaml:"audit_on_match,omitempty" json:"audit_on_match,omitempty"`
}

// Validate checks that p can be evaluated.
func (p *AccessPolicy) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPolicy)
	}
	if _, err := model.ParseDecision(string(p.Effect)); err != nil {
		return fmt.Errorf("%w: policy %s: %w", ErrInvalidPolicy, p.ID, err)
	}
	if !p.RequiredClearance.Valid() {
		return fmt.Errorf("%w: policy %s: required_clearance out of range", ErrInvalidPolicy, p.ID)
	}
	for i, c := range p.Conditions {
		if !c.AttributeType.Valid() {
			return fmt.Errorf("%w: policy %s: conditions[%d]: bad attribute type", ErrInvalidPolicy, p.ID, i)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("%w: policy %s: conditions[%d]: unknown operator %q", ErrInvalidPolicy, p.ID, i, c.Operator)
		}
	}
	return nil
}

// AppliesTo reports whether p is in scope for the tenant and resource type.
func (p *AccessPolicy) AppliesTo(tenantID, resourceType string) bool {
	if p.TenantID != "" && p.TenantID != tenantID {
		return false
	}
	if len(p.ResourcePatterns) == 0 {
		return true
	}
	for _, pattern := range p.ResourcePatterns {
		if pattern == "*" || pattern == resourceType {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can never alias store state.
func (p AccessPolicy) Clone() AccessPolicy {
	p.RequiredRoles = slices.Clone(p.RequiredRoles)
	p.RequiredJurisdictions = slices.Clone(p.RequiredJurisdictions)
	p.AllowedActions = slices.Clone(p.AllowedActions)
	p.DeniedActions = slices.Clone(p.DeniedActions)
	p.ResourcePatterns = slices.Clone(p.ResourcePatterns)
	p.Conditions = slices.Clone(p.Conditions)
	return p
}

// Applicable filters policies to the enabled ones in scope and sorts them by
// ascending priority. Ties keep a stable order by id.
func Applicable(policies []AccessPolicy, tenantID, resourceType string) []AccessPolicy {
	out := make([]AccessPolicy, 0, len(policies))
	for _, p := range policies {
		if !p.Enabled || !p.AppliesTo(tenantID, resourceType) {
			continue
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b AccessPolicy) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
