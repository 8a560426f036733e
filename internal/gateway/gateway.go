// Package gateway wires the stores, the audit chain and the evaluator into
// one explicitly constructed object. Every transport (gRPC, MCP, CLI, SDK)
// goes through a Gateway; nothing is held in package-level state.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/alert"
	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/config"
	"github.com/ppiankov/accessgate/internal/domain"
	"github.com/ppiankov/accessgate/internal/metrics"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
	"github.com/ppiankov/accessgate/internal/redact"
	"github.com/ppiankov/accessgate/internal/store"
	"github.com/ppiankov/accessgate/internal/tenantkey"
)

// Gateway is the composed access gateway.
type Gateway struct {
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time

	db       *store.Store
	policies policy.Store
	profiles profile.Registry
	filters  *redact.Catalog
	domains  *domain.Registry
	keys     *tenantkey.Registry
	chain    *audit.Chain
	eval     *access.Evaluator
	recorder *metrics.Recorder

	mu         sync.RWMutex
	bundleHash string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides time.Now for the evaluator, audit chain and key registry.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New builds a gateway from cfg. Persisted audit history is replayed and
// verified before the bundle is applied; a broken chain aborts startup.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Audit.MaxEntries <= 0 {
		cfg.Audit.MaxEntries = audit.DefaultMaxEntries
	}
	mode, err := domain.ParseMissingConfigMode(cfg.Domain.MissingConfig)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	g := &Gateway{cfg: cfg, logger: logger, now: time.Now}
	for _, o := range opts {
		o(g)
	}

	g.domains = domain.NewRegistry(mode)
	g.keys = tenantkey.NewRegistry(tenantkey.WithClock(g.now))
	if g.filters, err = redact.NewCatalog(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	var history []audit.Entry
	if cfg.Database != "" {
		if g.db, err = store.Open(cfg.Database); err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
		g.policies = g.db.Policies()
		g.profiles = g.db.Profiles()
		if history, err = g.db.LoadAudit(); err != nil {
			g.db.Close()
			return nil, fmt.Errorf("gateway: %w", err)
		}
		if err := g.restoreKeys(); err != nil {
			g.db.Close()
			return nil, err
		}
	} else {
		g.policies, _ = policy.NewMemoryStore()
		g.profiles = profile.NewMemoryRegistry()
		if cfg.Audit.Log != "" {
			if history, err = audit.LoadFile(cfg.Audit.Log); err != nil {
				return nil, fmt.Errorf("gateway: %w", err)
			}
		}
	}

	if err := g.openChain(history); err != nil {
		g.closeDB()
		return nil, err
	}

	evalOpts := []access.Option{
		access.WithLogger(logger.Named("access")),
		access.WithClock(g.now),
		access.WithKeyCounter(g.keys),
	}
	if g.db != nil {
		evalOpts = append(evalOpts, access.WithWindowCounter(g.db.AuditSink()))
	}
	g.eval = access.New(g.policies, g.profiles, g.filters, g.chain, evalOpts...)
	g.recorder = metrics.New(g, g.chain.Len)

	if err := g.Reload(); err != nil {
		g.Close()
		return nil, err
	}

	if mode == domain.MissingOpen {
		logger.Warn("cross-domain checks allow tenants without a domain config",
			zap.String("missing_config", string(mode)))
	}
	logger.Info("gateway ready",
		zap.String("bundle", cfg.Bundle),
		zap.String("database", cfg.Database),
		zap.String("audit_log", cfg.Audit.Log),
		zap.Int("audit_entries", g.chain.Len()),
	)
	return g, nil
}

func (g *Gateway) restoreKeys() error {
	saved, err := g.db.LoadTenantKeys()
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	for _, c := range saved {
		if err := g.keys.Restore(c); err != nil {
			return fmt.Errorf("gateway: restore key metadata for %s: %w", c.TenantID, err)
		}
	}
	return nil
}

func (g *Gateway) openChain(history []audit.Entry) error {
	var fileSink, dbSink audit.Sink
	var fs *audit.FileSink
	if g.cfg.Audit.Log != "" {
		var err error
		if fs, err = audit.OpenFileSink(g.cfg.Audit.Log); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		fileSink = fs
	}
	if g.db != nil {
		dbSink = g.db.AuditSink()
	}
	var alertSink audit.Sink
	d, err := alert.NewDispatcher(g.cfg.Alerts, g.logger.Named("alert"))
	if err != nil {
		if fileSink != nil {
			fileSink.Close()
		}
		return fmt.Errorf("gateway: %w", err)
	}
	if d != nil {
		alertSink = d
	}

	g.chain = audit.NewChain(
		audit.WithMaxEntries(g.cfg.Audit.MaxEntries),
		audit.WithSink(audit.MultiSink(dbSink, fileSink, alertSink)),
		audit.WithClock(g.now),
	)
	if err := g.chain.Restore(history); err != nil {
		g.chain.Close()
		return fmt.Errorf("gateway: refusing to start on persisted audit history: %w", err)
	}
	// An empty file joins the chain at the current tail; a non-empty one must
	// end where the restored history ends.
	if fs != nil && fs.Tail() != "" && fs.Tail() != g.chain.LastHash() {
		g.chain.Close()
		return fmt.Errorf("gateway: audit log %s diverged from the persisted chain: file tail %s, chain tail %s",
			fs.Path(), fs.Tail(), g.chain.LastHash())
	}
	return nil
}

// Reload re-reads the bundle file and applies it. Entries removed from the
// file stay in the stores until deleted through the admin operations.
func (g *Gateway) Reload() error {
	b, hash, err := bundle.LoadWithHash(g.cfg.Bundle)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	applied, err := b.Apply(bundle.Target{
		Policies: g.policies,
		Profiles: g.profiles,
		Filters:  g.filters,
		Domains:  g.domains,
		Keys:     g.keys,
	})
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	for _, tenant := range applied.KeysConfigured {
		if err := g.persistKey(tenant); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.bundleHash = hash
	g.mu.Unlock()

	g.logger.Info("bundle applied",
		zap.String("hash", hash),
		zap.Int("policies", applied.Policies),
		zap.Int("profiles", applied.Profiles),
		zap.Int("filters", applied.Filters),
		zap.Int("domains", applied.Domains),
		zap.Int("keys_configured", len(applied.KeysConfigured)),
	)
	return nil
}

// BundleHash is the sha256 of the bundle file last applied.
func (g *Gateway) BundleHash() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bundleHash
}

// BundlePath is the configured bundle file, "" when running on defaults.
func (g *Gateway) BundlePath() string {
	return g.cfg.Bundle
}

// Close flushes and closes the audit sinks and the database.
func (g *Gateway) Close() error {
	var errs []error
	if g.chain != nil {
		errs = append(errs, g.chain.Close())
	}
	errs = append(errs, g.closeDB())
	return errors.Join(errs...)
}

func (g *Gateway) closeDB() error {
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

// EvaluateAccess decides one request. See access.Evaluator.Evaluate for the
// error contract.
func (g *Gateway) EvaluateAccess(ctx context.Context, req *model.AccessRequest) (model.AccessResult, error) {
	if err := ctx.Err(); err != nil {
		return model.AccessResult{}, err
	}
	start := time.Now()
	res, err := g.eval.Evaluate(req)
	if res.Decision != "" {
		g.recorder.ObserveDecision(req.TenantID, res.Decision, time.Since(start))
	}
	return res, err
}

// ExplainAccess is EvaluateAccess with a per-policy trace. It is audited
// like any other evaluation.
func (g *Gateway) ExplainAccess(ctx context.Context, req *model.AccessRequest) (model.AccessResult, error) {
	if err := ctx.Err(); err != nil {
		return model.AccessResult{}, err
	}
	start := time.Now()
	res, err := g.eval.Explain(req)
	if res.Decision != "" {
		g.recorder.ObserveDecision(req.TenantID, res.Decision, time.Since(start))
	}
	return res, err
}

// EvaluateBatch decides requests concurrently, preserving order.
func (g *Gateway) EvaluateBatch(reqs []model.AccessRequest) []access.BatchItem {
	return g.eval.EvaluateBatch(reqs)
}

// Redact applies the clearance filter for cl to payload.
func (g *Gateway) Redact(payload map[string]any, cl model.Clearance) map[string]any {
	return g.filters.Redact(payload, cl)
}

// Metrics returns the evaluator summary.
func (g *Gateway) Metrics() access.Metrics {
	return g.eval.Metrics()
}

// MetricsHandler serves Prometheus metrics.
func (g *Gateway) MetricsHandler() http.Handler {
	return g.recorder.Handler()
}

// Recorder exposes the metrics recorder to transports.
func (g *Gateway) Recorder() *metrics.Recorder {
	return g.recorder
}
