package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrNotFound      = errors.New("domain config not found")
	ErrInvalidConfig = errors.New("invalid domain config")
)

// Config places a tenant in a named domain and says which other domains it
// may reach.
type Config struct {
	TenantID           string   `yaml:"tenant_id" json:"tenant_id"`
	DomainName         string   `yaml:"domain_name" json:"domain_name"`
	CrossDomainAllowed bool     `yaml:"cross_domain_allowed" json:"cross_domain_allowed"`
	AllowedDomains     []string `yaml:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	BlockedDomains     []string `yaml:"blocked_domains,omitempty" json:"blocked_domains,omitempty"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.DomainName) == "" {
		return fmt.Errorf("%w: %s: domain_name is required", ErrInvalidConfig, c.TenantID)
	}
	return nil
}

func (c Config) Clone() Config {
	c.AllowedDomains = slices.Clone(c.AllowedDomains)
	c.BlockedDomains = slices.Clone(c.BlockedDomains)
	return c
}

// MissingConfigMode decides cross-domain checks when a tenant has no config.
type MissingConfigMode string

const (
	// MissingOpen allows the check. This is the default.
	MissingOpen MissingConfigMode = "open"
	// MissingClosed denies the check.
	MissingClosed MissingConfigMode = "closed"
)

// ParseMissingConfigMode accepts "open", "closed" or "" (open).
func ParseMissingConfigMode(s string) (MissingConfigMode, error) {
	switch MissingConfigMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MissingOpen:
		return MissingOpen, nil
	case MissingClosed:
		return MissingClosed, nil
	}
	return "", fmt.Errorf("%w: unknown missing-config mode %q", ErrInvalidConfig, s)
}

// Registry holds one Config per tenant.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
	missing MissingConfigMode
}

// NewRegistry creates an empty registry with the given missing-config mode.
func NewRegistry(mode MissingConfigMode) *Registry {
	if mode == "" {
		mode = MissingOpen
	}
	return &Registry{configs: make(map[string]Config), missing: mode}
}

// Mode returns the registry's missing-config mode.
func (r *Registry) Mode() MissingConfigMode {
	return r.missing
}

// Put creates or replaces the tenant's config.
func (r *Registry) Put(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.configs[c.TenantID] = c.Clone()
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(tenantID string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[tenantID]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	return c.Clone(), nil
}

// Delete is a no-op for unknown tenants.
func (r *Registry) Delete(tenantID string) error {
	r.mu.Lock()
	delete(r.configs, tenantID)
	r.mu.Unlock()
	return nil
}

// List returns all configs ordered by tenant id.
func (r *Registry) List() []Config {
	r.mu.RLock()
	out := make([]Config, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c.Clone())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Config) int { return strings.Compare(a.TenantID, b.TenantID) })
	return out
}

// CheckCrossDomainAccess reports whether sourceTenant may reach targetTenant.
// A tenant reaching itself is judged by the same rules as any other pair.
func (r *Registry) CheckCrossDomainAccess(sourceTenant, targetTenant string) bool {
	ok, _ := r.Explain(sourceTenant, targetTenant)
	return ok
}

// Explain is CheckCrossDomainAccess with the reason for the outcome.
func (r *Registry) Explain(sourceTenant, targetTenant string) (bool, string) {
	r.mu.RLock()
	src, srcOK := r.configs[sourceTenant]
	dst, dstOK := r.configs[targetTenant]
	r.mu.RUnlock()

	if !srcOK || !dstOK {
		missing := sourceTenant
		if srcOK {
			missing = targetTenant
		}
		if r.missing == MissingClosed {
			return false, fmt.Sprintf("no domain config for %s (closed mode)", missing)
		}
		return true, fmt.Sprintf("no domain config for %s (open mode)", missing)
	}

	if !src.CrossDomainAllowed {
		return false, fmt.Sprintf("%s does not allow cross-domain access", src.DomainName)
	}
	if slices.Contains(src.BlockedDomains, dst.DomainName) {
		return false, fmt.Sprintf("%s blocks %s", src.DomainName, dst.DomainName)
	}
	if len(src.AllowedDomains) > 0 && !slices.Contains(src.AllowedDomains, dst.DomainName) {
		return false, fmt.Sprintf("%s is not in the allowed domains of %s", dst.DomainName, src.DomainName)
	}
	return true, fmt.Sprintf("%s may reach %s", src.DomainName, dst.DomainName)
}
