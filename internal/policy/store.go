package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Store holds access policies. Implementations must return copies so a
// snapshot used by one evaluation is unaffected by later writes.
type Store interface {
	Create(p AccessPolicy) error
	Update(p AccessPolicy) error
	// Upsert creates or replaces by id.
	Upsert(p AccessPolicy) error
	// Delete removes by id. Deleting a missing id is not an error.
	Delete(id string) error
	Get(id string) (AccessPolicy, error)
	List() ([]AccessPolicy, error)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store guarded by a reader-writer lock.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]AccessPolicy
}

// NewMemoryStore creates a MemoryStore seeded with the given policies.
func NewMemoryStore(seed ...AccessPolicy) (*MemoryStore, error) {
	s := &MemoryStore{policies: make(map[string]AccessPolicy, len(seed))}
	for _, p := range seed {
		if err := s.Upsert(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) Create(p AccessPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, p.ID)
	}
	s.policies[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Update(p AccessPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	s.policies[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Upsert(p AccessPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}

func (s *MemoryStore) Get(id string) (AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return AccessPolicy{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

// List returns all policies ordered by id.
func (s *MemoryStore) List() ([]AccessPolicy, error) {
	s.mu.RLock()
	out := make([]AccessPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b AccessPolicy) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// CountEnabled returns how many policies in the list are enabled.
func CountEnabled(policies []AccessPolicy) int {
	n := 0
	for _, p := range policies {
		if p.Enabled {
			n++
		}
	}
	return n
}

// ActiveHash is Hash over the enabled policies only.
func ActiveHash(policies []AccessPolicy) string {
	active := make([]AccessPolicy, 0, len(policies))
	for _, p := range policies {
		if p.Enabled {
			active = append(active, p)
		}
	}
	return Hash(active)
}

// Hash returns "sha256:<hex>" over the JSON encoding of the policies, sorted
// by id. It identifies which policy set produced a decision.
func Hash(policies []AccessPolicy) string {
	sorted := slices.Clone(policies)
	slices.SortFunc(sorted, func(a, b AccessPolicy) int { return strings.Compare(a.ID, b.ID) })
	data, err := json.Marshal(sorted)
	if err != nil {
		data = nil
	}
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
