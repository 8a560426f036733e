// Package access is the gateway's decision point. It combines ABAC profiles,
// the clearance gate, priority-ordered policies and clearance filters into
// one decision per request, and records every decision in the audit chain
// before returning it.
package access

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
	"github.com/ppiankov/accessgate/internal/redact"
)

// ErrAuditFailed means the decision could not be recorded. The accompanying
// result is always a Deny.
var ErrAuditFailed = errors.New("access: audit append failed")

// Reasons shared with callers and tests.
const (
	ReasonNoProfile       = "no ABAC profile"
	ReasonNoMatch         = "no matching allow policy"
	ReasonAuditFailed     = "audit append failed"
	reasonInsufficient    = "insufficient clearance"
	reasonSensitivity     = "sensitivity not permitted by profile"
	reasonPolicyStoreDown = "policy store unavailable"
)

// KeyCounter reports how many tenants have encryption metadata.
type KeyCounter interface {
	Count() int
}

// WindowCounter counts persisted decisions newer than since. It lets the
// 24h metrics see entries that in-memory retention already evicted.
type WindowCounter interface {
	CountSince(since time.Time) (requests, denials int, err error)
}

// Evaluator answers access requests. It is safe for concurrent use.
type Evaluator struct {
	policies policy.Store
	profiles profile.Registry
	filters  *redact.Catalog
	chain    *audit.Chain
	keys     KeyCounter
	window   WindowCounter
	logger   *zap.Logger
	now      func() time.Time

	total       atomic.Int64
	allowed     atomic.Int64
	denied      atomic.Int64
	conditional atomic.Int64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithKeyCounter supplies the tenants_encrypted metric.
func WithKeyCounter(k KeyCounter) Option {
	return func(e *Evaluator) { e.keys = k }
}

// WithWindowCounter counts the 24h metrics from persisted history instead of
// the retained audit window.
func WithWindowCounter(w WindowCounter) Option {
	return func(e *Evaluator) { e.window = w }
}

// New creates an Evaluator over explicit stores. A nil filter catalog
// disables redaction metadata.
func New(policies policy.Store, profiles profile.Registry, filters *redact.Catalog, chain *audit.Chain, opts ...Option) *Evaluator {
	e := &Evaluator{
		policies: policies,
		profiles: profiles,
		filters:  filters,
		chain:    chain,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate decides one request and records it in the audit chain.
//
// A malformed request returns an error wrapping model.ErrInvalidRequest and
// no decision. If the audit append fails the result is forced to Deny and the
// error wraps ErrAuditFailed.
func (e *Evaluator) Evaluate(req *model.AccessRequest) (model.AccessResult, error) {
	return e.evaluate(req, false)
}

// Explain is Evaluate with a per-policy trace in the result.
func (e *Evaluator) Explain(req *model.AccessRequest) (model.AccessResult, error) {
	return e.evaluate(req, true)
}

func (e *Evaluator) evaluate(in *model.AccessRequest, explain bool) (model.AccessResult, error) {
	if in == nil {
		return model.AccessResult{}, fmt.Errorf("%w: nil request", model.ErrInvalidRequest)
	}
	if err := in.Validate(); err != nil {
		return model.AccessResult{}, err
	}

	now := e.now().UTC()
	req := *in
	if req.Timestamp.IsZero() {
		req.Timestamp = now
	}

	d := e.decide(&req, explain)
	d.result.EvaluatedAt = now

	entry, err := e.chain.Append(auditEntry(&req, &d, now))
	if err != nil {
		res := d.result
		res.Decision = model.Deny
		res.Reason = ReasonAuditFailed + ": " + d.result.Reason
		res.RedactionApplied = false
		res.RedactedFields = nil
		e.count(res.Decision)
		e.logger.Error("audit append failed, decision forced to deny",
			zap.String("tenant_id", req.TenantID),
			zap.String("user_id", req.UserID),
			zap.String("action", req.Action),
			zap.String("original_decision", string(d.result.Decision)),
			zap.Error(err),
		)
		return res, fmt.Errorf("%w: %w", ErrAuditFailed, err)
	}

	res := d.result
	res.AuditLogged = true
	res.AuditEntryID = entry.ID
	e.count(res.Decision)

	fields := []zap.Field{
		zap.String("tenant_id", req.TenantID),
		zap.String("user_id", req.UserID),
		zap.String("resource_type", req.ResourceType),
		zap.String("action", req.Action),
		zap.String("decision", string(res.Decision)),
		zap.String("policy_id", res.MatchedPolicyID),
		zap.String("reason", res.Reason),
		zap.String("audit_entry_id", entry.ID),
	}
	if d.auditOnMatch {
		e.logger.Info("access decision", fields...)
	} else {
		e.logger.Debug("access decision", fields...)
	}
	return res, nil
}

func (e *Evaluator) count(d model.Decision) {
	e.total.Add(1)
	switch d {
	case model.Allow:
		e.allowed.Add(1)
	case model.Deny:
		e.denied.Add(1)
	case model.Conditional:
		e.conditional.Add(1)
	}
}
