// Package policydiff compares two bundles and reports what an operator is
// about to change: policies, profiles, filters, domains and encryption.
package policydiff

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/domain"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
	"github.com/ppiankov/accessgate/internal/redact"
)

// Sections of a bundle.
const (
	SectionPolicies   = "policies"
	SectionProfiles   = "profiles"
	SectionFilters    = "filters"
	SectionDomains    = "domains"
	SectionEncryption = "encryption"
)

// Change represents a field change on an item present in both bundles.
type Change struct {
	Section string `json:"section"`
	Item    string `json:"item"`
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"` // "stricter" or "looser"
}

// ItemChange represents an item added to or removed from a section.
type ItemChange struct {
	Type    string `json:"type"` // "added", "removed"
	Section string `json:"section"`
	Item    string `json:"item"`
	Summary string `json:"summary,omitempty"`
}

// DiffResult holds the comparison of two bundles.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	OldHash     string       `json:"old_hash,omitempty"`
	NewHash     string       `json:"new_hash,omitempty"`
	Changes     []Change     `json:"changes"`
	ItemChanges []ItemChange `json:"item_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two bundles and returns the differences.
func Diff(old, new *bundle.Bundle) *DiffResult {
	r := &DiffResult{}

	diffSection(r, SectionPolicies, index(old.Policies, policyKey), index(new.Policies, policyKey), policySummary, diffPolicy)
	diffSection(r, SectionProfiles, index(resolveAll(old.Profiles), profileKey), index(resolveAll(new.Profiles), profileKey), profileSummary, diffProfile)
	diffSection(r, SectionFilters, index(old.Filters, filterKey), index(new.Filters, filterKey), filterSummary, diffFilter)
	diffSection(r, SectionDomains, index(old.Domains, domainKey), index(new.Domains, domainKey), domainSummary, diffDomain)
	diffSection(r, SectionEncryption, index(old.Encryption, encryptionKey), index(new.Encryption, encryptionKey), encryptionSummary, diffEncryption)

	r.HasChanges = len(r.Changes) > 0 || len(r.ItemChanges) > 0
	return r
}

func index[T any](items []T, key func(T) string) map[string]T {
	m := make(map[string]T, len(items))
	for _, it := range items {
		m[key(it)] = it
	}
	return m
}

func diffSection[T any](r *DiffResult, section string, old, new map[string]T,
	summary func(T) string, fields func(a, b T) []Change) {
	for _, k := range slices.Sorted(maps.Keys(new)) {
		n := new[k]
		o, ok := old[k]
		if !ok {
			r.ItemChanges = append(r.ItemChanges, ItemChange{Type: "added", Section: section, Item: k, Summary: summary(n)})
			continue
		}
		for _, c := range fields(o, n) {
			c.Section, c.Item = section, k
			r.Changes = append(r.Changes, c)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(old)) {
		if _, ok := new[k]; !ok {
			r.ItemChanges = append(r.ItemChanges, ItemChange{Type: "removed", Section: section, Item: k, Summary: summary(old[k])})
		}
	}
}

// ordered reports "stricter" when moving from old to new raises the bar.
func ordered[T cmp.Ordered](old, new T, higherIsStricter bool) string {
	if (new > old) == higherIsStricter {
		return "stricter"
	}
	return "looser"
}

func scalar(field string, old, new fmt.Stringer, comment string) Change {
	return Change{Field: field, Old: old.String(), New: new.String(), Comment: comment}
}

func list(field string, old, new []string, comment func(added, removed []string) string) (Change, bool) {
	var added, removed []string
	for _, v := range new {
		if !slices.Contains(old, v) {
			added = append(added, v)
		}
	}
	for _, v := range old {
		if !slices.Contains(new, v) {
			removed = append(removed, v)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return Change{}, false
	}
	c := Change{Field: field, Old: strings.Join(old, ","), New: strings.Join(new, ",")}
	if comment != nil {
		c.Comment = comment(added, removed)
	}
	return c, true
}

// widening is the comment for lists where more entries grant more access.
func widening(added, removed []string) string {
	switch {
	case len(added) > 0 && len(removed) == 0:
		return "looser"
	case len(removed) > 0 && len(added) == 0:
		return "stricter"
	}
	return ""
}

// narrowing is the comment for lists where more entries restrict access.
func narrowing(added, removed []string) string {
	return widening(removed, added)
}

func appendList(out []Change, field string, old, new []string, comment func(added, removed []string) string) []Change {
	if c, ok := list(field, old, new, comment); ok {
		return append(out, c)
	}
	return out
}

type text string

func (t text) String() string { return string(t) }

func boolText(b bool) text { return text(fmt.Sprintf("%t", b)) }

func policyKey(p policy.AccessPolicy) string { return p.ID }

func policySummary(p policy.AccessPolicy) string {
	scope := "global"
	if p.TenantID != "" {
		scope = p.TenantID
	}
	state := "enabled"
	if !p.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%s priority=%d scope=%s %s", p.Effect, p.Priority, scope, state)
}

func diffPolicy(o, n policy.AccessPolicy) []Change {
	var out []Change
	if o.Effect != n.Effect {
		comment := "looser"
		if n.Effect == model.Deny {
			comment = "stricter"
		}
		out = append(out, Change{Field: "effect", Old: string(o.Effect), New: string(n.Effect), Comment: comment})
	}
	if o.Priority != n.Priority {
		out = append(out, Change{Field: "priority", Old: fmt.Sprint(o.Priority), New: fmt.Sprint(n.Priority)})
	}
	if o.TenantID != n.TenantID {
		out = append(out, Change{Field: "tenant_id", Old: o.TenantID, New: n.TenantID})
	}
	if o.Enabled != n.Enabled {
		// Disabling an allow removes access; disabling a deny restores it.
		comment := ordered(boolInt(o.Enabled), boolInt(n.Enabled), n.Effect == model.Deny)
		out = append(out, scalar("enabled", boolText(o.Enabled), boolText(n.Enabled), comment))
	}
	if o.RequiredClearance != n.RequiredClearance {
		out = append(out, scalar("required_clearance", o.RequiredClearance, n.RequiredClearance,
			ordered(o.RequiredClearance, n.RequiredClearance, n.Effect == model.Allow)))
	}
	grants := widening
	if n.Effect == model.Deny {
		grants = narrowing
	}
	out = appendList(out, "required_roles", o.RequiredRoles, n.RequiredRoles, nil)
	out = appendList(out, "required_jurisdictions", o.RequiredJurisdictions, n.RequiredJurisdictions, nil)
	out = appendList(out, "allowed_actions", o.AllowedActions, n.AllowedActions, grants)
	out = appendList(out, "denied_actions", o.DeniedActions, n.DeniedActions, nil)
	out = appendList(out, "resource_patterns", o.ResourcePatterns, n.ResourcePatterns, grants)
	if oc, nc := conditionLabels(o.Conditions), conditionLabels(n.Conditions); !slices.Equal(oc, nc) {
		out = append(out, Change{Field: "conditions", Old: strings.Join(oc, "; "), New: strings.Join(nc, "; ")})
	}
	return out
}

func conditionLabels(cs []policy.PolicyCondition) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = fmt.Sprintf("%s.%s %s %v", c.AttributeType, c.AttributeName, c.Operator, c.Value)
		if c.Negate {
			out[i] = "not " + out[i]
		}
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func resolveAll(specs []bundle.ProfileSpec) []profile.ABACProfile {
	out := make([]profile.ABACProfile, 0, len(specs))
	for _, ps := range specs {
		p, err := ps.Resolve()
		if err != nil {
			p = ps.ABACProfile
		}
		out = append(out, p)
	}
	return out
}

func profileKey(p profile.ABACProfile) string { return profile.Key(p.TenantID, p.UserID) }

func profileSummary(p profile.ABACProfile) string {
	return fmt.Sprintf("clearance=%s roles=%s", p.Clearance, strings.Join(p.Roles, ","))
}

func diffProfile(o, n profile.ABACProfile) []Change {
	var out []Change
	if o.Clearance != n.Clearance {
		out = append(out, scalar("clearance", o.Clearance, n.Clearance, ordered(o.Clearance, n.Clearance, false)))
	}
	out = appendList(out, "roles", o.Roles, n.Roles, widening)
	out = appendList(out, "jurisdictions", o.Jurisdictions, n.Jurisdictions, widening)
	out = appendList(out, "allowed_sensitivities", sensitivityNames(o.AllowedSensitivities), sensitivityNames(n.AllowedSensitivities), nil)
	if o.MFARequired != n.MFARequired {
		out = append(out, scalar("mfa_required", boolText(o.MFARequired), boolText(n.MFARequired),
			ordered(boolInt(o.MFARequired), boolInt(n.MFARequired), true)))
	}
	return out
}

func sensitivityNames(ss []model.Sensitivity) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.String()
	}
	return out
}

func filterKey(f redact.ClearanceFilter) string { return f.ID }

func filterSummary(f redact.ClearanceFilter) string {
	return fmt.Sprintf("min_clearance=%s excludes %d fields", f.MinClearance, len(f.ExcludedFields))
}

func diffFilter(o, n redact.ClearanceFilter) []Change {
	var out []Change
	if o.MinClearance != n.MinClearance {
		out = append(out, scalar("min_clearance", o.MinClearance, n.MinClearance, ""))
	}
	if o.MaxSensitivity != n.MaxSensitivity {
		out = append(out, scalar("max_sensitivity", o.MaxSensitivity, n.MaxSensitivity,
			ordered(o.MaxSensitivity, n.MaxSensitivity, false)))
	}
	out = appendList(out, "excluded_fields", o.ExcludedFields, n.ExcludedFields, narrowing)
	out = appendList(out, "field_masks", slices.Sorted(maps.Keys(o.FieldMasks)), slices.Sorted(maps.Keys(n.FieldMasks)), narrowing)
	out = appendList(out, "scrub_patterns", patternNames(o.ScrubPatterns), patternNames(n.ScrubPatterns), narrowing)
	return out
}

func patternNames(ps []redact.PatternType) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func domainKey(c domain.Config) string { return c.TenantID }

func domainSummary(c domain.Config) string {
	return fmt.Sprintf("domain=%s cross_domain_allowed=%t", c.DomainName, c.CrossDomainAllowed)
}

func diffDomain(o, n domain.Config) []Change {
	var out []Change
	if o.DomainName != n.DomainName {
		out = append(out, Change{Field: "domain_name", Old: o.DomainName, New: n.DomainName})
	}
	if o.CrossDomainAllowed != n.CrossDomainAllowed {
		out = append(out, scalar("cross_domain_allowed", boolText(o.CrossDomainAllowed), boolText(n.CrossDomainAllowed),
			ordered(boolInt(o.CrossDomainAllowed), boolInt(n.CrossDomainAllowed), false)))
	}
	out = appendList(out, "allowed_domains", o.AllowedDomains, n.AllowedDomains, widening)
	out = appendList(out, "blocked_domains", o.BlockedDomains, n.BlockedDomains, narrowing)
	return out
}

func encryptionKey(e bundle.EncryptionSpec) string { return e.TenantID }

func encryptionSummary(e bundle.EncryptionSpec) string {
	return fmt.Sprintf("algorithm=%s rotation_days=%d", e.Algorithm, e.RotationDays)
}

func diffEncryption(o, n bundle.EncryptionSpec) []Change {
	var out []Change
	if o.Algorithm != n.Algorithm {
		out = append(out, Change{Field: "algorithm", Old: o.Algorithm, New: n.Algorithm})
	}
	if o.RotationDays != n.RotationDays {
		out = append(out, Change{Field: "rotation_days", Old: fmt.Sprint(o.RotationDays), New: fmt.Sprint(n.RotationDays),
			Comment: ordered(o.RotationDays, n.RotationDays, false)})
	}
	return out
}
