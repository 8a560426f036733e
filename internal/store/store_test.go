package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
	"github.com/ppiankov/accessgate/internal/tenantkey"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "accessgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func detectivePolicy() policy.AccessPolicy {
	return policy.AccessPolicy{
		ID:                "p-detective-read",
		Name:              "Detectives read case files",
		TenantID:          "metro-pd",
		Priority:          10,
		Effect:            model.Allow,
		RequiredClearance: model.ClearanceStandard,
		RequiredRoles:     []string{"detective"},
		AllowedActions:    []string{"read"},
		ResourcePatterns:  []string{"case_file"},
		Conditions: []policy.PolicyCondition{{
			AttributeType: policy.AttrResource,
			AttributeName: "status",
			Operator:      policy.OpEquals,
			Value:         "open",
		}},
		Enabled: true,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accessgate.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Policies().Create(detectivePolicy()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Policies().List()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPolicyStoreRoundTrip(t *testing.T) {
	ps := setupTestStore(t).Policies()
	p := detectivePolicy()

	require.NoError(t, ps.Create(p))
	got, err := ps.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	assert.ErrorIs(t, ps.Create(p), policy.ErrExists)

	p.Priority = 5
	require.NoError(t, ps.Update(p))
	got, err = ps.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority)

	missing := detectivePolicy()
	missing.ID = "p-missing"
	assert.ErrorIs(t, ps.Update(missing), policy.ErrNotFound)

	require.NoError(t, ps.Upsert(missing))
	require.NoError(t, ps.Upsert(missing))
	all, err := ps.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p-detective-read", all[0].ID)
	assert.Equal(t, "p-missing", all[1].ID)

	require.NoError(t, ps.Delete(p.ID))
	require.NoError(t, ps.Delete(p.ID))
	_, err = ps.Get(p.ID)
	assert.ErrorIs(t, err, policy.ErrNotFound)
}

func TestPolicyStoreRejectsInvalid(t *testing.T) {
	ps := setupTestStore(t).Policies()
	p := detectivePolicy()
	p.Effect = "maybe"
	assert.ErrorIs(t, ps.Create(p), policy.ErrInvalidPolicy)
	assert.ErrorIs(t, ps.Upsert(p), policy.ErrInvalidPolicy)
}

func TestPolicyStoreHashMatchesMemory(t *testing.T) {
	ps := setupTestStore(t).Policies()
	require.NoError(t, ps.Upsert(detectivePolicy()))
	require.NoError(t, ps.Upsert(policy.DefaultPolicies()[0]))

	mem, err := policy.NewMemoryStore(policy.DefaultPolicies()[0], detectivePolicy())
	require.NoError(t, err)

	fromSQL, err := ps.List()
	require.NoError(t, err)
	fromMem, err := mem.List()
	require.NoError(t, err)
	assert.Equal(t, policy.Hash(fromMem), policy.Hash(fromSQL))
}

func TestProfileRegistry(t *testing.T) {
	pr := setupTestStore(t).Profiles()
	alice := profile.ABACProfile{
		TenantID:             "metro-pd",
		UserID:               "alice",
		Clearance:            model.ClearanceStandard,
		Roles:                []string{"detective"},
		Jurisdictions:        []string{"north"},
		AllowedSensitivities: []model.Sensitivity{model.SensPublic, model.SensInternal},
		UserAttributes:       map[string]any{"unit": "homicide"},
		MFARequired:          true,
		SessionTimeout:       4 * time.Hour,
	}
	bob := profile.ABACProfile{TenantID: "county-so", UserID: "bob", Clearance: model.ClearanceBasic}

	require.NoError(t, pr.Put(alice))
	require.NoError(t, pr.Put(bob))

	got, err := pr.Get("metro-pd", "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	alice.Clearance = model.ClearanceElevated
	require.NoError(t, pr.Put(alice))
	got, err = pr.Get("metro-pd", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ClearanceElevated, got.Clearance)

	all, err := pr.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	scoped, err := pr.List("metro-pd")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "alice", scoped[0].UserID)

	require.NoError(t, pr.Delete("metro-pd", "alice"))
	require.NoError(t, pr.Delete("metro-pd", "alice"))
	_, err = pr.Get("metro-pd", "alice")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	assert.ErrorIs(t, pr.Put(profile.ABACProfile{UserID: "x"}), profile.ErrInvalidProfile)
}

func TestAuditSinkPersistsChain(t *testing.T) {
	s := setupTestStore(t)
	chain := audit.NewChain(audit.WithSink(s.AuditSink()))

	for i, decision := range []model.Decision{model.Allow, model.Deny, model.Allow} {
		_, err := chain.Append(audit.Entry{
			TenantID:       "metro-pd",
			UserID:         "alice",
			Action:         "read",
			ResourceType:   "case_file",
			ResourceID:     []string{"c-1", "c-2", "c-3"}[i],
			Decision:       decision,
			RequestDetails: map[string]any{"resource_sensitivity": "internal"},
		})
		require.NoError(t, err)
	}

	entries, err := s.LoadAudit()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "c-1", entries[0].ResourceID)
	assert.Equal(t, model.Deny, entries[1].Decision)
	assert.Equal(t, chain.LastHash(), entries[2].ChainHash)
	assert.True(t, audit.VerifyEntries(entries).Valid)

	restored := audit.NewChain()
	require.NoError(t, restored.Restore(entries))
	assert.Equal(t, chain.LastHash(), restored.LastHash())
}

type flakySink struct{ writes, failOn int }

func (f *flakySink) Write(audit.Entry) error {
	f.writes++
	if f.writes == f.failOn {
		return errors.New("disk full")
	}
	return nil
}
func (f *flakySink) Close() error { return nil }

func TestAuditSinkRollsBackWhenLaterSinkFails(t *testing.T) {
	s := setupTestStore(t)
	chain := audit.NewChain(audit.WithSink(audit.MultiSink(s.AuditSink(), &flakySink{failOn: 2})))

	var failed int
	for range 3 {
		if _, err := chain.Append(audit.Entry{TenantID: "metro-pd", UserID: "alice", Action: "read", Decision: model.Allow}); err != nil {
			failed++
		}
	}
	require.Equal(t, 1, failed)

	entries, err := s.LoadAudit()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, audit.VerifyEntries(entries).Valid)
	assert.Equal(t, chain.LastHash(), entries[1].ChainHash)
	require.NoError(t, audit.NewChain().Restore(entries))

	assert.Error(t, s.AuditSink().Rollback("no-such-entry"))
}

func TestAuditSinkCountSince(t *testing.T) {
	s := setupTestStore(t)
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	chain := audit.NewChain(audit.WithSink(s.AuditSink()))

	for i, decision := range []model.Decision{model.Allow, model.Deny, model.Deny, model.Allow} {
		_, err := chain.Append(audit.Entry{
			TenantID:  "metro-pd",
			UserID:    "alice",
			Action:    "read",
			Decision:  decision,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	requests, denials, err := s.AuditSink().CountSince(start.Add(90 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, denials)

	requests, _, err = s.AuditSink().CountSince(start)
	require.NoError(t, err)
	assert.Equal(t, 4, requests)
}

func TestAuditTamperDetected(t *testing.T) {
	s := setupTestStore(t)
	chain := audit.NewChain(audit.WithSink(s.AuditSink()))
	for _, id := range []string{"c-1", "c-2", "c-3"} {
		_, err := chain.Append(audit.Entry{
			TenantID: "metro-pd", UserID: "alice", Action: "read",
			ResourceType: "case_file", ResourceID: id, Decision: model.Deny,
		})
		require.NoError(t, err)
	}

	_, err := s.DB().Exec(`UPDATE audit_entries SET decision = 'allow' WHERE resource_id = 'c-2'`)
	require.NoError(t, err)

	entries, err := s.LoadAudit()
	require.NoError(t, err)
	res := audit.VerifyEntries(entries)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, res.ErrorIndex)

	assert.ErrorIs(t, audit.NewChain().Restore(entries), audit.ErrBrokenChain)
}

func TestTenantKeys(t *testing.T) {
	s := setupTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := tenantkey.NewRegistry(tenantkey.WithClock(func() time.Time { return now }))

	c, err := reg.Configure("metro-pd", tenantkey.AES256GCM, 30)
	require.NoError(t, err)
	require.NoError(t, s.SaveTenantKey(c))

	c, err = reg.Rotate("metro-pd")
	require.NoError(t, err)
	require.NoError(t, s.SaveTenantKey(c))

	loaded, err := s.LoadTenantKeys()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, c.KeyID, loaded[0].KeyID)
	assert.Equal(t, 2, loaded[0].KeyVersion)
	assert.Equal(t, 30*24*time.Hour, loaded[0].RotationInterval)
	assert.True(t, c.NextRotation.Equal(loaded[0].NextRotation))

	fresh := tenantkey.NewRegistry()
	require.NoError(t, fresh.Restore(loaded[0]))
	assert.Equal(t, 1, fresh.Count())

	require.NoError(t, s.DeleteTenantKey("metro-pd"))
	loaded, err = s.LoadTenantKeys()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
