package gateway

import (
	"fmt"
	"time"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/domain"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
	"github.com/ppiankov/accessgate/internal/redact"
	"github.com/ppiankov/accessgate/internal/tenantkey"
)

func (g *Gateway) CreatePolicy(p policy.AccessPolicy) error { return g.policies.Create(p) }
func (g *Gateway) UpdatePolicy(p policy.AccessPolicy) error { return g.policies.Update(p) }
func (g *Gateway) UpsertPolicy(p policy.AccessPolicy) error { return g.policies.Upsert(p) }
func (g *Gateway) DeletePolicy(id string) error             { return g.policies.Delete(id) }

func (g *Gateway) GetPolicy(id string) (policy.AccessPolicy, error) {
	return g.policies.Get(id)
}

func (g *Gateway) ListPolicies() ([]policy.AccessPolicy, error) {
	return g.policies.List()
}

func (g *Gateway) PutProfile(p profile.ABACProfile) error { return g.profiles.Put(p) }

func (g *Gateway) GetProfile(tenantID, userID string) (profile.ABACProfile, error) {
	return g.profiles.Get(tenantID, userID)
}

func (g *Gateway) DeleteProfile(tenantID, userID string) error {
	return g.profiles.Delete(tenantID, userID)
}

func (g *Gateway) ListProfiles(tenantID string) ([]profile.ABACProfile, error) {
	return g.profiles.List(tenantID)
}

func (g *Gateway) PutFilter(f redact.ClearanceFilter) error { return g.filters.Put(f) }
func (g *Gateway) DeleteFilter(id string) error             { return g.filters.Delete(id) }
func (g *Gateway) ListFilters() []redact.ClearanceFilter    { return g.filters.List() }

func (g *Gateway) PutDomain(c domain.Config) error { return g.domains.Put(c) }

func (g *Gateway) GetDomain(tenantID string) (domain.Config, error) {
	return g.domains.Get(tenantID)
}

func (g *Gateway) ListDomains() []domain.Config { return g.domains.List() }

// CheckCrossDomainAccess reports whether sourceTenant may reach targetTenant.
func (g *Gateway) CheckCrossDomainAccess(sourceTenant, targetTenant string) bool {
	return g.domains.CheckCrossDomainAccess(sourceTenant, targetTenant)
}

// ExplainCrossDomain returns the decision and its reason.
func (g *Gateway) ExplainCrossDomain(sourceTenant, targetTenant string) (bool, string) {
	return g.domains.Explain(sourceTenant, targetTenant)
}

// ConfigureEncryption issues key metadata for a tenant and persists it.
func (g *Gateway) ConfigureEncryption(tenantID, algorithm string, rotationDays int) (tenantkey.Config, error) {
	c, err := g.keys.Configure(tenantID, algorithm, rotationDays)
	if err != nil {
		return tenantkey.Config{}, err
	}
	return c, g.saveKey(c)
}

// RotateKey bumps a tenant's key version and persists it.
func (g *Gateway) RotateKey(tenantID string) (tenantkey.Config, error) {
	c, err := g.keys.Rotate(tenantID)
	if err != nil {
		return tenantkey.Config{}, err
	}
	return c, g.saveKey(c)
}

func (g *Gateway) GetKey(tenantID string) (tenantkey.Config, error) {
	return g.keys.Get(tenantID)
}

func (g *Gateway) ListKeys() []tenantkey.Config { return g.keys.List() }

// KeysDue lists tenants whose next rotation is at or before at.
func (g *Gateway) KeysDue(at time.Time) []tenantkey.Config {
	return g.keys.DueForRotation(at)
}

func (g *Gateway) persistKey(tenantID string) error {
	c, err := g.keys.Get(tenantID)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return g.saveKey(c)
}

func (g *Gateway) saveKey(c tenantkey.Config) error {
	if g.db == nil {
		return nil
	}
	if err := g.db.SaveTenantKey(c); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// AuditLog returns the most recent retained entries matching f, oldest first.
func (g *Gateway) AuditLog(f audit.Filter) []audit.Entry {
	return g.chain.Query(f)
}

// VerifyAuditChain verifies the retained in-memory window.
func (g *Gateway) VerifyAuditChain() audit.VerifyResult {
	return g.chain.VerifyDetailed()
}

// VerifyPersistedAudit verifies the full persisted history from genesis:
// the database when configured, otherwise the JSONL log. With neither it
// falls back to the in-memory window.
func (g *Gateway) VerifyPersistedAudit() audit.VerifyResult {
	switch {
	case g.db != nil:
		entries, err := g.db.LoadAudit()
		if err != nil {
			return audit.VerifyResult{Error: err.Error(), ErrorIndex: -1}
		}
		return audit.VerifyEntries(entries)
	case g.cfg.Audit.Log != "":
		return audit.VerifyFile(g.cfg.Audit.Log)
	}
	return g.chain.VerifyDetailed()
}
