// Package bundle loads the declarative YAML seed for a gateway: policies,
// profiles, clearance filters, domain configs and tenant key settings.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/accessgate/internal/domain"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
	"github.com/ppiankov/accessgate/internal/redact"
	"github.com/ppiankov/accessgate/internal/tenantkey"
)

// ProfileSpec is a profile entry. When Template is set the named template
// supplies the base and any non-zero field given here overrides it.
type ProfileSpec struct {
	profile.ABACProfile `yaml:",inline"`

	Template string `yaml:"template,omitempty"`
}

// EncryptionSpec requests key metadata for one tenant.
type EncryptionSpec struct {
	TenantID     string `yaml:"tenant_id"`
	Algorithm    string `yaml:"algorithm,omitempty"`
	RotationDays int    `yaml:"rotation_days,omitempty"`
}

// Bundle is the parsed seed document.
type Bundle struct {
	Policies   []policy.AccessPolicy    `yaml:"policies"`
	Profiles   []ProfileSpec            `yaml:"profiles,omitempty"`
	Filters    []redact.ClearanceFilter `yaml:"filters"`
	Domains    []domain.Config          `yaml:"domains,omitempty"`
	Encryption []EncryptionSpec         `yaml:"encryption,omitempty"`
}

// Default returns the built-in bundle: the default-deny policy and the four
// canonical clearance filters.
func Default() *Bundle {
	return &Bundle{
		Policies: policy.DefaultPolicies(),
		Filters:  redact.DefaultFilters(),
	}
}

// Load reads a bundle from path. A missing file returns Default. Sections
// absent from the file keep their defaults.
func Load(path string) (*Bundle, error) {
	b, _, err := LoadWithHash(path)
	return b, err
}

// LoadWithHash is Load plus the sha256 of the raw file bytes, recorded so an
// operator can tell which bundle produced a decision.
func LoadWithHash(path string) (*Bundle, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h := sha256.Sum256(nil)
			return Default(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("bundle: read %s: %w", path, err)
	}
	h := sha256.Sum256(data)

	b, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("bundle: %s: %w", path, err)
	}
	return b, "sha256:" + hex.EncodeToString(h[:]), nil
}

// Parse decodes a bundle document and validates every entry.
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	def := Default()
	if b.Policies == nil {
		b.Policies = def.Policies
	}
	if b.Filters == nil {
		b.Filters = def.Filters
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks every entry without touching any registry.
func (b *Bundle) Validate() error {
	for i := range b.Policies {
		if err := b.Policies[i].Validate(); err != nil {
			return fmt.Errorf("policies[%d]: %w", i, err)
		}
	}
	for i, ps := range b.Profiles {
		p, err := ps.Resolve()
		if err != nil {
			return fmt.Errorf("profiles[%d]: %w", i, err)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profiles[%d]: %w", i, err)
		}
	}
	for i := range b.Filters {
		if err := b.Filters[i].Validate(); err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
	}
	for i := range b.Domains {
		if err := b.Domains[i].Validate(); err != nil {
			return fmt.Errorf("domains[%d]: %w", i, err)
		}
	}
	for i, e := range b.Encryption {
		if e.TenantID == "" {
			return fmt.Errorf("encryption[%d]: %w", i, tenantkey.ErrMissingTenant)
		}
		if e.RotationDays < 0 {
			return fmt.Errorf("encryption[%d]: %w", i, tenantkey.ErrInvalidRotation)
		}
	}
	return nil
}

// Resolve expands a template reference into a full profile.
func (ps ProfileSpec) Resolve() (profile.ABACProfile, error) {
	if ps.Template == "" {
		return ps.ABACProfile.Clone(), nil
	}
	base, err := profile.FromTemplate(ps.Template, ps.TenantID, ps.UserID)
	if err != nil {
		return profile.ABACProfile{}, err
	}
	o := ps.ABACProfile
	if o.Clearance != model.ClearanceNone {
		base.Clearance = o.Clearance
	}
	if o.Roles != nil {
		base.Roles = o.Roles
	}
	if o.Jurisdictions != nil {
		base.Jurisdictions = o.Jurisdictions
	}
	if o.AllowedSensitivities != nil {
		base.AllowedSensitivities = o.AllowedSensitivities
	}
	if o.UserAttributes != nil {
		base.UserAttributes = o.UserAttributes
	}
	if o.MFARequired {
		base.MFARequired = true
	}
	if o.SessionTimeout > 0 {
		base.SessionTimeout = o.SessionTimeout
	}
	return base.Clone(), nil
}

// Target is the set of registries a bundle is applied to.
type Target struct {
	Policies policy.Store
	Profiles profile.Registry
	Filters  *redact.Catalog
	Domains  *domain.Registry
	Keys     *tenantkey.Registry
}

// Applied counts what Apply wrote.
type Applied struct {
	Policies int
	Profiles int
	Filters  int
	Domains  int
	// KeysConfigured lists tenants that received new key metadata.
	KeysConfigured []string
}

// Apply upserts every entry into t. Re-applying the same bundle is a no-op
// apart from refreshing values: tenants that already have key metadata keep
// their key id and version. Nil targets are skipped.
func (b *Bundle) Apply(t Target) (Applied, error) {
	var a Applied
	if t.Policies != nil {
		for _, p := range b.Policies {
			if err := t.Policies.Upsert(p); err != nil {
				return a, fmt.Errorf("bundle: policy %s: %w", p.ID, err)
			}
			a.Policies++
		}
	}
	if t.Profiles != nil {
		for _, ps := range b.Profiles {
			p, err := ps.Resolve()
			if err != nil {
				return a, fmt.Errorf("bundle: profile %s: %w", profile.Key(ps.TenantID, ps.UserID), err)
			}
			if err := t.Profiles.Put(p); err != nil {
				return a, fmt.Errorf("bundle: profile %s: %w", profile.Key(p.TenantID, p.UserID), err)
			}
			a.Profiles++
		}
	}
	if t.Filters != nil {
		for _, f := range b.Filters {
			if err := t.Filters.Put(f); err != nil {
				return a, fmt.Errorf("bundle: filter %s: %w", f.ID, err)
			}
			a.Filters++
		}
	}
	if t.Domains != nil {
		for _, d := range b.Domains {
			if err := t.Domains.Put(d); err != nil {
				return a, fmt.Errorf("bundle: domain %s: %w", d.TenantID, err)
			}
			a.Domains++
		}
	}
	if t.Keys != nil {
		for _, e := range b.Encryption {
			if _, err := t.Keys.Get(e.TenantID); err == nil {
				continue
			}
			alg := e.Algorithm
			if alg == "" {
				alg = tenantkey.AES256GCM
			}
			if _, err := t.Keys.Configure(e.TenantID, alg, e.RotationDays); err != nil {
				return a, fmt.Errorf("bundle: encryption %s: %w", e.TenantID, err)
			}
			a.KeysConfigured = append(a.KeysConfigured, e.TenantID)
		}
	}
	return a, nil
}
