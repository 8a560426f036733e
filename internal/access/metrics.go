package access

import (
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/policy"
)

// Metrics is the gateway's operational summary. The 24h windows come from the
// WindowCounter when one is set, otherwise from the retained audit entries,
// which undercount once retention evicts entries younger than 24h.
type Metrics struct {
	TotalRequests    int64 `json:"total_requests"`
	Allowed          int64 `json:"allowed"`
	Denied           int64 `json:"denied"`
	Conditional      int64 `json:"conditional"`
	Requests24h      int   `json:"requests_24h"`
	Denials24h       int   `json:"denials_24h"`
	ActivePolicies   int   `json:"active_policies"`
	TenantsEncrypted int   `json:"tenants_encrypted"`
}

// Metrics returns counters since process start plus trailing 24h windows.
func (e *Evaluator) Metrics() Metrics {
	m := Metrics{
		TotalRequests: e.total.Load(),
		Allowed:       e.allowed.Load(),
		Denied:        e.denied.Load(),
		Conditional:   e.conditional.Load(),
	}

	m.Requests24h, m.Denials24h = e.window24h(e.now().Add(-24 * time.Hour))

	if all, err := e.policies.List(); err == nil {
		m.ActivePolicies = policy.CountEnabled(all)
	}
	if e.keys != nil {
		m.TenantsEncrypted = e.keys.Count()
	}
	return m
}

func (e *Evaluator) window24h(since time.Time) (requests, denials int) {
	if e.window != nil {
		r, d, err := e.window.CountSince(since)
		if err == nil {
			return r, d
		}
		e.logger.Warn("persisted audit count failed, using retained entries", zap.Error(err))
	}
	recent := e.chain.Query(audit.Filter{Since: since})
	for _, entry := range recent {
		if entry.Decision == model.Deny {
			denials++
		}
	}
	return len(recent), denials
}
