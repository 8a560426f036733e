package redact

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ppiankov/accessgate/internal/model"
)

// Catalog holds clearance filters by id.
type Catalog struct {
	mu      sync.RWMutex
	filters map[string]ClearanceFilter
}

// NewCatalog creates a catalog seeded with the given filters.
func NewCatalog(seed ...ClearanceFilter) (*Catalog, error) {
	c := &Catalog{filters: make(map[string]ClearanceFilter, len(seed))}
	for _, f := range seed {
		if err := c.Put(f); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Put creates or replaces a filter.
func (c *Catalog) Put(f ClearanceFilter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.filters[f.ID] = f.Clone()
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Get(id string) (ClearanceFilter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.filters[id]
	if !ok {
		return ClearanceFilter{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return f.Clone(), nil
}

// Delete is a no-op for unknown ids.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	delete(c.filters, id)
	c.mu.Unlock()
	return nil
}

// List returns all filters ordered by id.
func (c *Catalog) List() []ClearanceFilter {
	c.mu.RLock()
	out := make([]ClearanceFilter, 0, len(c.filters))
	for _, f := range c.filters {
		out = append(out, f.Clone())
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b ClearanceFilter) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ForClearance returns the canonical filter for a clearance level. ok is
// false when the level has no canonical id or none is configured.
func (c *Catalog) ForClearance(cl model.Clearance) (ClearanceFilter, bool) {
	id := CanonicalID(cl)
	if id == "" {
		return ClearanceFilter{}, false
	}
	f, err := c.Get(id)
	if err != nil {
		return ClearanceFilter{}, false
	}
	return f, true
}

// Redact applies the filter for the clearance level to payload. Payloads for
// levels without a filter come back as an unmodified copy.
func (c *Catalog) Redact(payload map[string]any, cl model.Clearance) map[string]any {
	f, ok := c.ForClearance(cl)
	if !ok {
		return Apply(payload, nil)
	}
	return Apply(payload, &f)
}
