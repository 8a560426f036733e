package redact

// Apply returns a redacted copy of payload. Excluded fields are removed,
// masked fields are overwritten with their mask string, and string values
// left over are scrubbed for the filter's patterns. A nil filter returns an
// unmodified copy. The input is never mutated and Apply(Apply(p)) == Apply(p).
func Apply(payload map[string]any, f *ClearanceFilter) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	if f == nil {
		return out
	}

	for _, k := range f.ExcludedFields {
		delete(out, k)
	}
	for k, mask := range f.FieldMasks {
		if _, ok := out[k]; !ok {
			continue
		}
		if mask == "" {
			mask = DefaultMask
		}
		out[k] = mask
	}
	if len(f.ScrubPatterns) > 0 {
		for k, v := range out {
			if _, masked := f.FieldMasks[k]; masked {
				continue
			}
			out[k] = scrubValue(v, f.ScrubPatterns)
		}
	}
	return out
}

// ApplyRecords redacts each record.
func ApplyRecords(records []map[string]any, f *ClearanceFilter) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = Apply(r, f)
	}
	return out
}

// scrubValue rewrites strings, recursing into nested maps and lists without
// touching the originals.
func scrubValue(v any, types []PatternType) any {
	switch val := v.(type) {
	case string:
		return Scrub(val, types...)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = scrubValue(inner, types)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = scrubValue(inner, types)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = Scrub(s, types...)
		}
		return out
	default:
		return v
	}
}
