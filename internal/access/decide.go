package access

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
)

type decision struct {
	result       model.AccessResult
	policyHash   string
	applicable   int
	auditOnMatch bool
}

func deny(reason string) decision {
	return decision{result: model.AccessResult{Decision: model.Deny, Reason: reason}}
}

// decide evaluates req and stamps the result with the hash of the enabled
// policy set, whichever step produced the decision.
func (e *Evaluator) decide(req *model.AccessRequest, explain bool) decision {
	all, listErr := e.policies.List()
	d := e.decideWith(req, explain, all, listErr)
	if listErr == nil {
		d.policyHash = policy.ActiveHash(all)
	}
	return d
}

func (e *Evaluator) decideWith(req *model.AccessRequest, explain bool, all []policy.AccessPolicy, listErr error) decision {
	prof, err := e.profiles.Get(req.TenantID, req.UserID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return deny(ReasonNoProfile)
		}
		return deny(fmt.Sprintf("%s: %v", ReasonNoProfile, err))
	}

	if !model.CanAccess(prof.Clearance, req.ResourceSensitivity) {
		return deny(fmt.Sprintf("%s: %s below %s", reasonInsufficient, prof.Clearance, req.ResourceSensitivity))
	}
	if !prof.AllowsSensitivity(req.ResourceSensitivity) {
		return deny(fmt.Sprintf("%s: %s", reasonSensitivity, req.ResourceSensitivity))
	}

	if listErr != nil {
		e.logger.Error("policy store list failed", zap.Error(listErr))
		return deny(fmt.Sprintf("%s: %v", reasonPolicyStoreDown, listErr))
	}
	applicable := policy.Applicable(all, req.TenantID, req.ResourceType)

	subj := &policy.Subject{
		Clearance:     prof.Clearance,
		Roles:         prof.Roles,
		Jurisdictions: prof.Jurisdictions,
		Attributes:    prof.UserAttributes,
	}

	d := decision{applicable: len(applicable)}
	res := &d.result
	var winner *policy.AccessPolicy
	for i := range applicable {
		p := &applicable[i]
		m := policy.Match(p, subj, req)
		res.ConditionsEvaluated += m.ConditionsEvaluated
		res.ConditionsMatched += m.ConditionsMatched
		if explain {
			res.Trace = append(res.Trace, traceLine(p, m))
		}
		if m.Matched {
			winner = p
			break
		}
	}

	if winner == nil {
		res.Decision = model.Deny
		res.Reason = ReasonNoMatch
		return d
	}

	res.Decision = winner.Effect
	res.MatchedPolicyID = winner.ID
	res.MatchedPolicyName = winner.Name
	res.Reason = "matched policy " + policyLabel(winner)
	d.auditOnMatch = winner.AuditOnMatch

	if res.Decision == model.Allow && e.filters != nil {
		if f, ok := e.filters.ForClearance(prof.Clearance); ok {
			res.RedactionApplied = true
			res.RedactedFields = slices.Clone(f.ExcludedFields)
		}
	}
	return d
}

func policyLabel(p *policy.AccessPolicy) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func traceLine(p *policy.AccessPolicy, m policy.MatchResult) string {
	outcome := "matched"
	if !m.Matched {
		outcome = "failed at " + m.FailedAt
	}
	return fmt.Sprintf("%s (priority %d, %s): %s [%d/%d gates]",
		p.ID, p.Priority, p.Effect, outcome, m.ConditionsMatched, m.ConditionsEvaluated)
}

func auditEntry(req *model.AccessRequest, d *decision, at time.Time) audit.Entry {
	reqDetails := map[string]any{
		"resource_sensitivity": req.ResourceSensitivity.String(),
		"requester_clearance":  req.RequesterClearance.String(),
		"applicable_policies":  d.applicable,
		"request_timestamp":    req.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if req.SourceIP != "" {
		reqDetails["source_ip"] = req.SourceIP
	}
	if len(req.RequesterRoles) > 0 {
		reqDetails["requester_roles"] = slices.Clone(req.RequesterRoles)
	}
	if len(req.RequesterJurisdictions) > 0 {
		reqDetails["requester_jurisdictions"] = slices.Clone(req.RequesterJurisdictions)
	}
	if d.policyHash != "" {
		reqDetails["policy_hash"] = d.policyHash
	}

	respDetails := map[string]any{
		"reason":               d.result.Reason,
		"conditions_evaluated": d.result.ConditionsEvaluated,
		"conditions_matched":   d.result.ConditionsMatched,
	}
	if d.result.RedactionApplied {
		respDetails["redacted_fields"] = slices.Clone(d.result.RedactedFields)
	}

	return audit.Entry{
		TenantID:        req.TenantID,
		UserID:          req.UserID,
		Action:          req.Action,
		ResourceType:    req.ResourceType,
		ResourceID:      req.ResourceID,
		Decision:        d.result.Decision,
		PolicyID:        d.result.MatchedPolicyID,
		RequestDetails:  reqDetails,
		ResponseDetails: respDetails,
		Timestamp:       at,
	}
}
