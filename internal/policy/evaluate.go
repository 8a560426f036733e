package policy

import (
	"fmt"
	"slices"

	"github.com/ppiankov/accessgate/internal/model"
)

// MatchResult is the outcome of testing one policy against a request.
type MatchResult struct {
	Matched             bool
	ConditionsEvaluated int
	ConditionsMatched   int
	// FailedAt names the first gate that did not pass; empty on match.
	FailedAt string
}

// Match runs the policy gates in fixed order and stops at the first failure:
//  1. required_clearance (skipped when none)
//  2. required_roles, any-of (skipped when empty)
//  3. required_jurisdictions, any-of (skipped when empty)
//  4. allowed_actions membership (skipped when empty)
//  5. denied_actions non-membership (skipped when empty)
//  6. each condition in declaration order
//
// Every gate that runs increments ConditionsEvaluated; every gate that
// passes increments ConditionsMatched.
func Match(p *AccessPolicy, subj *Subject, req *model.AccessRequest) MatchResult {
	var r MatchResult

	gate := func(name string, ok bool) bool {
		r.ConditionsEvaluated++
		if ok {
			r.ConditionsMatched++
			return true
		}
		r.FailedAt = name
		return false
	}

	if p.RequiredClearance != model.ClearanceNone {
		if !gate("required_clearance", subj.Clearance.Rank() >= p.RequiredClearance.Rank()) {
			return r
		}
	}
	if len(p.RequiredRoles) > 0 {
		if !gate("required_roles", overlaps(p.RequiredRoles, subj.Roles)) {
			return r
		}
	}
	if len(p.RequiredJurisdictions) > 0 {
		if !gate("required_jurisdictions", overlaps(p.RequiredJurisdictions, subj.Jurisdictions)) {
			return r
		}
	}
	if len(p.AllowedActions) > 0 {
		if !gate("allowed_actions", slices.Contains(p.AllowedActions, req.Action)) {
			return r
		}
	}
	if len(p.DeniedActions) > 0 {
		if !gate("denied_actions", !slices.Contains(p.DeniedActions, req.Action)) {
			return r
		}
	}
	for i, c := range p.Conditions {
		if !gate(fmt.Sprintf("conditions[%d]", i), EvaluateCondition(c, subj, req)) {
			return r
		}
	}

	r.Matched = true
	return r
}

func overlaps(want, have []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
