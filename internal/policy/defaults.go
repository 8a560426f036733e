package policy

import "github.com/ppiankov/accessgate/internal/model"

// DefaultDenyID is the id of the built-in lowest-precedence deny-all policy.
const DefaultDenyID = "policy-default-deny"

// DefaultDenyPriority sits below any priority an operator is expected to use.
const DefaultDenyPriority = 1000

// DefaultPolicies returns the built-in policy set: a single global deny-all.
// With no other policy in place every request is denied with a policy id
// the operator can find in the audit log.
func DefaultPolicies() []AccessPolicy {
	return []AccessPolicy{
		{
			ID:               DefaultDenyID,
			Name:             "default-deny",
			Description:      "deny anything no higher-precedence policy allowed",
			Priority:         DefaultDenyPriority,
			Effect:           model.Deny,
			ResourcePatterns: []string{"*"},
			Enabled:          true,
			AuditOnMatch:     true,
		},
	}
}
