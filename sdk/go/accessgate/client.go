package accessgate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/config"
	"github.com/ppiankov/accessgate/internal/gateway"
	"github.com/ppiankov/accessgate/internal/model"
)

// Client evaluates access in-process. Safe for concurrent use.
type Client struct {
	gw *gateway.Gateway
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{maxEntries: audit.DefaultMaxEntries}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	gw, err := gateway.New(config.Config{
		Bundle:   cfg.bundlePath,
		Database: cfg.databasePath,
		Audit:    config.AuditConfig{Log: cfg.auditLogPath, MaxEntries: cfg.maxEntries},
		Domain:   config.DomainConfig{MissingConfig: cfg.missingDomain},
	}, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("accessgate: %w", err)
	}
	return &Client{gw: gw}, nil
}

// Evaluate decides req and records the decision in the audit chain. A
// non-nil error with a Deny result means the request was malformed or the
// audit append failed.
func (c *Client) Evaluate(ctx context.Context, req Request) (Result, error) {
	return c.gw.EvaluateAccess(ctx, &req)
}

// Explain is Evaluate with a per-policy trace in the result.
func (c *Client) Explain(ctx context.Context, req Request) (Result, error) {
	return c.gw.ExplainAccess(ctx, &req)
}

// Check returns only the decision, collapsing any error into a denial.
func (c *Client) Check(ctx context.Context, req Request) Result {
	res, err := c.gw.EvaluateAccess(ctx, &req)
	if err != nil {
		res.Decision = model.Deny
		if res.Reason == "" {
			res.Reason = err.Error()
		}
	}
	return res
}

// CrossDomain reports whether source may reach target and why.
func (c *Client) CrossDomain(source, target string) (bool, string) {
	return c.gw.ExplainCrossDomain(source, target)
}

// Redact returns a copy of payload filtered for the given clearance.
func (c *Client) Redact(payload map[string]any, cl Clearance) map[string]any {
	return c.gw.Redact(payload, cl)
}

// VerifyAudit checks the in-memory audit chain.
func (c *Client) VerifyAudit() VerifyResult {
	return c.gw.VerifyAuditChain()
}

// Metrics returns decision counters.
func (c *Client) Metrics() access.Metrics {
	return c.gw.Metrics()
}

// Close flushes the audit sinks and closes the database.
func (c *Client) Close() error {
	return c.gw.Close()
}
