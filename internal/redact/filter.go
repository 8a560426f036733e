package redact

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ppiankov/accessgate/internal/model"
)

var (
	ErrNotFound      = errors.New("filter not found")
	ErrInvalidFilter = errors.New("invalid filter")
)

// DefaultMask replaces a masked field when the filter gives an empty mask.
const DefaultMask = "***"

// ClearanceFilter describes what a holder of MinClearance may see.
type ClearanceFilter struct {
	ID             string            `yaml:"id" json:"id"`
	Name           string            `yaml:"name" json:"name"`
	MinClearance   model.Clearance   `yaml:"min_clearance" json:"min_clearance"`
	MaxSensitivity model.Sensitivity `yaml:"max_sensitivity" json:"max_sensitivity"`
	// FieldMasks maps a field name to the string that replaces its value.
	FieldMasks     map[string]string `yaml:"field_masks,omitempty" json:"field_masks,omitempty"`
	ExcludedFields []string          `yaml:"excluded_fields,omitempty" json:"excluded_fields,omitempty"`
	// ScrubPatterns names free-text patterns (SSN, EMAIL, ...) replaced inside
	// every remaining string value.
	ScrubPatterns []PatternType `yaml:"scrub_patterns,omitempty" json:"scrub_patterns,omitempty"`
}

// CanonicalID returns the catalog id used for a clearance level, or "" for
// levels that have no canonical filter.
func CanonicalID(c model.Clearance) string {
	switch c {
	case model.ClearanceBasic, model.ClearanceStandard, model.ClearanceElevated, model.ClearanceHigh:
		return "filter-" + c.String()
	}
	return ""
}

// Validate checks a filter before it enters the catalog.
func (f *ClearanceFilter) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidFilter)
	}
	if !f.MinClearance.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFilter, f.ID, model.ErrInvalidClearance)
	}
	if !f.MaxSensitivity.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFilter, f.ID, model.ErrInvalidSensitivity)
	}
	for _, p := range f.ScrubPatterns {
		if _, err := ParsePatternType(string(p)); err != nil {
			return fmt.Errorf("%s: %w", f.ID, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (f ClearanceFilter) Clone() ClearanceFilter {
	f.FieldMasks = maps.Clone(f.FieldMasks)
	f.ExcludedFields = slices.Clone(f.ExcludedFields)
	f.ScrubPatterns = slices.Clone(f.ScrubPatterns)
	return f
}
