package accessgate

import (
	"fmt"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
)

type (
	// Request is one authorization question.
	Request = model.AccessRequest
	// Result is the decision for a Request.
	Result = model.AccessResult
	// Decision is the evaluation outcome.
	Decision = model.Decision
	// Clearance is a user's trust tier.
	Clearance = model.Clearance
	// Sensitivity is a resource's confidentiality tier.
	Sensitivity = model.Sensitivity
	// VerifyResult reports audit chain integrity.
	VerifyResult = audit.VerifyResult
)

const (
	Allow       = model.Allow
	Deny        = model.Deny
	Conditional = model.Conditional
	Audit       = model.Audit
)

const (
	ClearanceNone          = model.ClearanceNone
	ClearanceBasic         = model.ClearanceBasic
	ClearanceStandard      = model.ClearanceStandard
	ClearanceElevated      = model.ClearanceElevated
	ClearanceHigh          = model.ClearanceHigh
	ClearanceTop           = model.ClearanceTop
	ClearanceCompartmented = model.ClearanceCompartmented
)

const (
	SensPublic       = model.SensPublic
	SensInternal     = model.SensInternal
	SensRestricted   = model.SensRestricted
	SensConfidential = model.SensConfidential
	SensSecret       = model.SensSecret
	SensTopSecret    = model.SensTopSecret
)

// BlockedError is returned by wrapped functions when access is not allowed.
type BlockedError struct {
	Request  Request
	Decision Decision
	Reason   string
	PolicyID string
	Trace    []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("accessgate blocked (%s): %s", e.Decision, e.Reason)
}

func blocked(req Request, res Result) *BlockedError {
	return &BlockedError{
		Request:  req,
		Decision: res.Decision,
		Reason:   res.Reason,
		PolicyID: res.MatchedPolicyID,
		Trace:    res.Trace,
	}
}
