package accessgate

import "go.uber.org/zap"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	bundlePath    string
	databasePath  string
	auditLogPath  string
	maxEntries    int
	missingDomain string
	logger        *zap.Logger
}

// WithBundle sets the path to a policy bundle YAML file.
func WithBundle(path string) Option {
	return func(c *clientConfig) { c.bundlePath = path }
}

// WithDatabase persists policies, profiles, keys and audit entries in a
// SQLite file.
func WithDatabase(path string) Option {
	return func(c *clientConfig) { c.databasePath = path }
}

// WithAuditLog mirrors the audit chain to a JSONL file.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditLogPath = path }
}

// WithMaxAuditEntries bounds the in-memory audit window.
func WithMaxAuditEntries(n int) Option {
	return func(c *clientConfig) { c.maxEntries = n }
}

// WithClosedDomains denies cross-domain checks for tenants that have no
// domain config.
func WithClosedDomains() Option {
	return func(c *clientConfig) { c.missingDomain = "closed" }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	explain bool
}

// WrapWithExplain records a per-policy trace on blocked calls.
func WrapWithExplain() WrapOption {
	return func(w *wrapConfig) { w.explain = true }
}
