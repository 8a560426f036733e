package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/accessgate/internal/model"
)

const separator = "──────────────────────────────────────────────────────────────────"

// Summary counts decisions over a set of entries.
type Summary struct {
	Total       int    `json:"total"`
	Allow       int    `json:"allow"`
	Deny        int    `json:"deny"`
	Conditional int    `json:"conditional"`
	Audit       int    `json:"audit"`
	First       string `json:"first,omitempty"`
	Last        string `json:"last,omitempty"`
}

// Summarize counts decisions and records the time range.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		s.Total++
		switch e.Decision {
		case model.Allow:
			s.Allow++
		case model.Deny:
			s.Deny++
		case model.Conditional:
			s.Conditional++
		case model.Audit:
			s.Audit++
		}
		ts := e.Timestamp.UTC().Format("2006-01-02 15:04:05")
		if s.First == "" {
			s.First = ts
		}
		s.Last = ts
	}
	return s
}

// FormatTimeline renders entries as a human-readable text timeline.
func FormatTimeline(entries []Entry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}

	var b strings.Builder
	sum := Summarize(entries)
	fmt.Fprintf(&b, "Audit: %d entries | %s – %s UTC\n", sum.Total, sum.First, sum.Last)
	b.WriteString(separator + "\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "%-9s %-12s %-14s %-12s %-8s %-26s %s\n",
			e.Timestamp.UTC().Format("15:04:05"),
			truncate(e.TenantID, 12),
			truncate(e.UserID, 14),
			strings.ToUpper(string(e.Decision)),
			truncate(e.Action, 8),
			truncate(e.ResourceType+"/"+e.ResourceID, 26),
			truncate(e.PolicyID, 28),
		)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(sum))
	return b.String()
}

// FormatJSON renders entries as indented JSON.
func FormatJSON(entries []Entry) (string, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal entries: %w", err)
	}
	return string(data), nil
}

func formatSummary(s Summary) string {
	parts := []string{}
	if s.Allow > 0 {
		parts = append(parts, fmt.Sprintf("%d allow", s.Allow))
	}
	if s.Deny > 0 {
		parts = append(parts, fmt.Sprintf("%d deny", s.Deny))
	}
	if s.Conditional > 0 {
		parts = append(parts, fmt.Sprintf("%d conditional", s.Conditional))
	}
	if s.Audit > 0 {
		parts = append(parts, fmt.Sprintf("%d audit", s.Audit))
	}
	return fmt.Sprintf("Summary: %s\n", strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
