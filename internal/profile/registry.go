package profile

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry stores ABAC profiles keyed by tenant and user.
type Registry interface {
	Put(p ABACProfile) error
	Get(tenantID, userID string) (ABACProfile, error)
	// Delete is a no-op when the profile does not exist.
	Delete(tenantID, userID string) error
	// List returns the tenant's profiles; an empty tenant lists all.
	List(tenantID string) ([]ABACProfile, error)
}

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	profiles map[string]ABACProfile
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{profiles: make(map[string]ABACProfile)}
}

func (r *MemoryRegistry) Put(p ABACProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.profiles[Key(p.TenantID, p.UserID)] = p.Clone()
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Get(tenantID, userID string) (ABACProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[Key(tenantID, userID)]
	if !ok {
		return ABACProfile{}, fmt.Errorf("%w: %s", ErrNotFound, Key(tenantID, userID))
	}
	return p.Clone(), nil
}

func (r *MemoryRegistry) Delete(tenantID, userID string) error {
	r.mu.Lock()
	delete(r.profiles, Key(tenantID, userID))
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) List(tenantID string) ([]ABACProfile, error) {
	r.mu.RLock()
	out := make([]ABACProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		if tenantID == "" || p.TenantID == tenantID {
			out = append(out, p.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ABACProfile) int {
		return strings.Compare(Key(a.TenantID, a.UserID), Key(b.TenantID, b.UserID))
	})
	return out, nil
}
