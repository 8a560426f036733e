package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies a category of sensitive data found in free text.
type PatternType string

const (
	PatternSSN   PatternType = "SSN"
	PatternEmail PatternType = "EMAIL"
	PatternPhone PatternType = "PHONE"
	PatternIP    PatternType = "IP"
	PatternCard  PatternType = "CARD"
	PatternCred  PatternType = "CRED"
)

// Match is a single occurrence of sensitive data in text.
type Match struct {
	Type  PatternType
	Value string
	Start int
	End   int
}

var (
	ssnRe = regexp.MustCompile(`\b(\d{3}-\d{2}-\d{4})\b`)

	emailRe = regexp.MustCompile(`\b([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})\b`)

	// North American numbers: (555) 123-4567, 555-123-4567, 555.123.4567.
	phoneRe = regexp.MustCompile(`(\(\d{3}\)\s?\d{3}-\d{4}|\b\d{3}[-.]\d{3}[-.]\d{4}\b)`)

	ipv4Re = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)

	// 13 to 16 digits, optionally grouped by spaces or dashes.
	cardRe = regexp.MustCompile(`\b(\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{1,4})\b`)

	credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key|apikey)[ \t]*[=:][ \t]*[^\s\[]\S*)`)
)

var patternRes = map[PatternType]*regexp.Regexp{
	PatternSSN:   ssnRe,
	PatternEmail: emailRe,
	PatternPhone: phoneRe,
	PatternIP:    ipv4Re,
	PatternCard:  cardRe,
	PatternCred:  credKVRe,
}

// scanOrder fixes precedence when two patterns overlap: an SSN is never
// reported as part of a phone number or card.
var scanOrder = []PatternType{PatternCred, PatternEmail, PatternSSN, PatternCard, PatternPhone, PatternIP}

// ParsePatternType validates a pattern name, case-insensitively.
func ParsePatternType(s string) (PatternType, error) {
	pt := PatternType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := patternRes[pt]; !ok {
		return "", fmt.Errorf("%w: unknown scrub pattern %q", ErrInvalidFilter, s)
	}
	return pt, nil
}

// UnmarshalText accepts pattern names in any case.
func (p *PatternType) UnmarshalText(b []byte) error {
	v, err := ParsePatternType(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Scan finds sensitive values of the requested types in text. With no types
// every known pattern is used. Overlapping matches keep the one found first
// in precedence order; results are sorted by position.
func Scan(text string, types ...PatternType) []Match {
	if len(types) == 0 {
		types = scanOrder
	}
	want := make(map[PatternType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	var matches []Match
	overlaps := func(start, end int) bool {
		for _, m := range matches {
			if start < m.End && m.Start < end {
				return true
			}
		}
		return false
	}

	for _, typ := range scanOrder {
		if !want[typ] {
			continue
		}
		for _, loc := range patternRes[typ].FindAllStringIndex(text, -1) {
			v := strings.TrimRight(text[loc[0]:loc[1]], ".,;:\"'`)}]")
			end := loc[0] + len(v)
			if v == "" || overlaps(loc[0], end) {
				continue
			}
			matches = append(matches, Match{Type: typ, Value: v, Start: loc[0], End: end})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// Scrub replaces every match in text with a "[REDACTED:<TYPE>]" token.
// Tokens never match a pattern, so scrubbing is idempotent.
func Scrub(text string, types ...PatternType) string {
	matches := Scan(text, types...)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString("[REDACTED:" + string(m.Type) + "]")
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}
