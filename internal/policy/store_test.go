package policy

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/accessgate/internal/model"
)

func samplePolicy() AccessPolicy {
	return AccessPolicy{
		ID:                    "policy-allow-write-standard",
		Name:                  "allow-write-standard",
		TenantID:              "tenant-a",
		Priority:              90,
		Effect:                model.Allow,
		RequiredClearance:     model.ClearanceStandard,
		RequiredRoles:         []string{"detective"},
		RequiredJurisdictions: []string{"CA"},
		AllowedActions:        []string{"read", "write"},
		DeniedActions:         []string{"delete"},
		ResourcePatterns:      []string{"case"},
		Conditions: []PolicyCondition{
			{AttributeType: AttrResource, AttributeName: "status", Operator: OpEquals, Value: "open"},
		},
		Enabled:      true,
		AuditOnMatch: true,
	}
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	s, _ := NewMemoryStore()
	p := samplePolicy()
	if err := s.Create(p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, p)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	s, _ := NewMemoryStore(samplePolicy())
	if err := s.Create(samplePolicy()); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestUpdateMissingFails(t *testing.T) {
	s, _ := NewMemoryStore()
	if err := s.Update(samplePolicy()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertAndDeleteAreIdempotent(t *testing.T) {
	s, _ := NewMemoryStore()
	p := samplePolicy()
	for i := 0; i < 2; i++ {
		if err := s.Upsert(p); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}
	list, _ := s.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(list))
	}
	for i := 0; i < 2; i++ {
		if err := s.Delete(p.ID); err != nil {
			t.Fatalf("Delete %d: %v", i, err)
		}
	}
	if _, err := s.Get(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s, _ := NewMemoryStore(samplePolicy())
	got, _ := s.Get("policy-allow-write-standard")
	got.RequiredRoles[0] = "mutated"
	got.Conditions[0].Value = "mutated"

	again, _ := s.Get("policy-allow-write-standard")
	if again.RequiredRoles[0] != "detective" {
		t.Error("mutating a returned policy leaked into the store")
	}
	if again.Conditions[0].Value != "open" {
		t.Error("mutating a returned condition leaked into the store")
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	s, _ := NewMemoryStore()
	if err := s.Upsert(AccessPolicy{ID: "x", Effect: "maybe"}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	s, _ := NewMemoryStore(DefaultPolicies()...)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Upsert(samplePolicy())
		}()
		go func() {
			defer wg.Done()
			s.List()
		}()
	}
	wg.Wait()
	list, _ := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(list))
	}
}

func TestHashChangesWithPolicySet(t *testing.T) {
	a := Hash(DefaultPolicies())
	b := Hash(append(DefaultPolicies(), samplePolicy()))
	if a == b {
		t.Fatal("expected different hashes for different policy sets")
	}
	if !strings.HasPrefix(a, "sha256:") || len(a) != 7+64 {
		t.Fatalf("unexpected hash format %q", a)
	}
	if Hash(DefaultPolicies()) != a {
		t.Fatal("hash must be deterministic")
	}
}
