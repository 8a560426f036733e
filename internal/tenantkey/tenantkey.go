// Package tenantkey tracks per-tenant encryption key metadata: which
// algorithm a tenant uses, the current key id and version, and when the key
// is due for rotation. It never holds key material and performs no
// cryptography; an external KMS consumes this metadata.
package tenantkey

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotConfigured    = errors.New("tenant encryption not configured")
	ErrInvalidAlgorithm = errors.New("unsupported encryption algorithm")
	ErrInvalidRotation  = errors.New("rotation interval must be positive")
	ErrMissingTenant    = errors.New("tenant id is required")
)

// Supported algorithms.
const (
	AES256GCM     = "AES-256-GCM"
	ChaCha20      = "ChaCha20-Poly1305"
	AES256CBCHMAC = "AES-256-CBC-HMAC"
)

// DefaultRotationDays applies when Configure is given no interval.
const DefaultRotationDays = 90

var algorithms = []string{AES256GCM, ChaCha20, AES256CBCHMAC}

// Algorithms returns the allow-listed algorithm names.
func Algorithms() []string {
	return slices.Clone(algorithms)
}

// Config is the key metadata for one tenant.
type Config struct {
	TenantID         string        `yaml:"tenant_id" json:"tenant_id"`
	Algorithm        string        `yaml:"algorithm" json:"algorithm"`
	KeyID            string        `yaml:"key_id" json:"key_id"`
	KeyVersion       int           `yaml:"key_version" json:"key_version"`
	RotationInterval time.Duration `yaml:"rotation_interval" json:"rotation_interval"`
	LastRotation     time.Time     `yaml:"last_rotation" json:"last_rotation"`
	NextRotation     time.Time     `yaml:"next_rotation" json:"next_rotation"`
}

// Registry holds key metadata per tenant.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{configs: make(map[string]Config), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

func normalizeAlgorithm(a string) (string, error) {
	if strings.TrimSpace(a) == "" {
		return AES256GCM, nil
	}
	for _, known := range algorithms {
		if strings.EqualFold(known, strings.TrimSpace(a)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAlgorithm, a)
}

func newKeyID(tenantID string) string {
	return "key-" + tenantID + "-" + uuid.New().String()
}

// Configure sets up (or resets) a tenant's key metadata at version 1.
// An empty algorithm selects AES-256-GCM; rotationDays <= 0 selects the
// default interval.
func (r *Registry) Configure(tenantID, algorithm string, rotationDays int) (Config, error) {
	if strings.TrimSpace(tenantID) == "" {
		return Config{}, ErrMissingTenant
	}
	alg, err := normalizeAlgorithm(algorithm)
	if err != nil {
		return Config{}, err
	}
	if rotationDays <= 0 {
		rotationDays = DefaultRotationDays
	}

	now := r.now().UTC()
	interval := time.Duration(rotationDays) * 24 * time.Hour
	c := Config{
		TenantID:         tenantID,
		Algorithm:        alg,
		KeyID:            newKeyID(tenantID),
		KeyVersion:       1,
		RotationInterval: interval,
		LastRotation:     now,
		NextRotation:     now.Add(interval),
	}

	r.mu.Lock()
	r.configs[tenantID] = c
	r.mu.Unlock()
	return c, nil
}

// Restore puts previously persisted metadata back without issuing a new key.
func (r *Registry) Restore(c Config) error {
	if strings.TrimSpace(c.TenantID) == "" {
		return ErrMissingTenant
	}
	alg, err := normalizeAlgorithm(c.Algorithm)
	if err != nil {
		return err
	}
	if c.RotationInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRotation, c.TenantID)
	}
	c.Algorithm = alg
	r.mu.Lock()
	r.configs[c.TenantID] = c
	r.mu.Unlock()
	return nil
}

// Rotate bumps the key version, issues a new key id and restarts the
// rotation clock.
func (r *Registry) Rotate(tenantID string) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[tenantID]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotConfigured, tenantID)
	}
	now := r.now().UTC()
	c.KeyVersion++
	c.KeyID = newKeyID(tenantID)
	c.LastRotation = now
	c.NextRotation = now.Add(c.RotationInterval)
	r.configs[tenantID] = c
	return c, nil
}

func (r *Registry) Get(tenantID string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[tenantID]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotConfigured, tenantID)
	}
	return c, nil
}

// Delete is a no-op for unconfigured tenants.
func (r *Registry) Delete(tenantID string) {
	r.mu.Lock()
	delete(r.configs, tenantID)
	r.mu.Unlock()
}

// List returns every tenant's metadata ordered by tenant id.
func (r *Registry) List() []Config {
	r.mu.RLock()
	out := make([]Config, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Config) int { return strings.Compare(a.TenantID, b.TenantID) })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}

// DueForRotation lists tenants whose NextRotation is at or before at.
func (r *Registry) DueForRotation(at time.Time) []Config {
	var due []Config
	for _, c := range r.List() {
		if !c.NextRotation.After(at) {
			due = append(due, c)
		}
	}
	return due
}
