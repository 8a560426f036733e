package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

var sectionOrder = []string{SectionPolicies, SectionProfiles, SectionFilters, SectionDomains, SectionEncryption}

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bundle diff: %s → %s\n", r.OldPath, r.NewPath)
	if r.OldHash != "" || r.NewHash != "" {
		fmt.Fprintf(&b, "  %s → %s\n", short(r.OldHash), short(r.NewHash))
	}
	if !r.HasChanges {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	for _, section := range sectionOrder {
		items := filterItems(r.ItemChanges, section)
		changes := filterChanges(r.Changes, section)
		if len(items) == 0 && len(changes) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n  %s:\n", strings.ToUpper(section[:1])+section[1:])
		for _, ic := range items {
			mark := "+"
			if ic.Type == "removed" {
				mark = "-"
			}
			fmt.Fprintf(&b, "    %s %s  %s\n", mark, ic.Item, ic.Summary)
		}
		item := ""
		for _, c := range changes {
			if c.Item != item {
				fmt.Fprintf(&b, "    ~ %s\n", c.Item)
				item = c.Item
			}
			fmt.Fprintf(&b, "        %-24s %s → %s", c.Field+":", orNone(c.Old), orNone(c.New))
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterChanges(changes []Change, section string) []Change {
	var out []Change
	for _, c := range changes {
		if c.Section == section {
			out = append(out, c)
		}
	}
	return out
}

func filterItems(items []ItemChange, section string) []ItemChange {
	var out []ItemChange
	for _, ic := range items {
		if ic.Section == section {
			out = append(out, ic)
		}
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func short(hash string) string {
	if len(hash) > 19 {
		return hash[:19]
	}
	return orNone(hash)
}
