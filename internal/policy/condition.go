package policy

import (
	"cmp"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ppiankov/accessgate/internal/model"
)

// Subject is the attribute view of the requesting user, built from the
// ABAC profile rather than from anything the caller asserts.
type Subject struct {
	Clearance     model.Clearance
	Roles         []string
	Jurisdictions []string
	Attributes    map[string]any
}

// Resolve returns the actual value a condition compares against.
// A nil return means the attribute could not be resolved.
func Resolve(c PolicyCondition, subj *Subject, req *model.AccessRequest) any {
	switch c.AttributeType {
	case AttrUser:
		if subj.Attributes == nil {
			return nil
		}
		return subj.Attributes[c.AttributeName]
	case AttrClearance:
		return subj.Clearance
	case AttrRole:
		return subj.Roles
	case AttrJurisdiction:
		return subj.Jurisdictions
	case AttrResource:
		if req.Attributes == nil {
			return nil
		}
		return req.Attributes[c.AttributeName]
	case AttrAction:
		return req.Action
	case AttrTenant:
		return req.TenantID
	case AttrEnvironment, AttrTime, AttrLocation:
		// No request field carries these; conditions on them see null.
		return nil
	}
	return nil
}

// EvaluateCondition resolves and compares a single condition, then applies Negate.
func EvaluateCondition(c PolicyCondition, subj *Subject, req *model.AccessRequest) bool {
	result := Compare(c.Operator, Resolve(c, subj, req), c.Value)
	if c.Negate {
		return !result
	}
	return result
}

// Compare applies op to (actual, expected).
// A nil actual only satisfies not_equals and not_contains against a non-nil expected.
func Compare(op Operator, actual, expected any) bool {
	if isNil(actual) {
		switch op {
		case OpNotEquals, OpNotContains:
			return !isNil(expected)
		default:
			return false
		}
	}

	switch op {
	case OpEquals:
		return valuesEqual(actual, expected)
	case OpNotEquals:
		return !valuesEqual(actual, expected)
	case OpContains:
		return contains(actual, expected)
	case OpNotContains:
		return !contains(actual, expected)
	case OpIn:
		return in(actual, expected)
	case OpNotIn:
		return !in(actual, expected)
	case OpGreaterThan:
		c, ok := order(actual, expected)
		return ok && c > 0
	case OpLessThan:
		c, ok := order(actual, expected)
		return ok && c < 0
	case OpStartsWith:
		return strings.HasPrefix(toString(actual), toString(expected))
	case OpEndsWith:
		return strings.HasSuffix(toString(actual), toString(expected))
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// normalize folds enum and numeric types so that values decoded from YAML,
// JSON, or built in Go compare equal.
func normalize(v any) any {
	switch x := v.(type) {
	case model.Clearance:
		return x.String()
	case model.Sensitivity:
		return x.String()
	case model.Decision:
		return string(x)
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func valuesEqual(a, b any) bool {
	na, nb := normalize(a), normalize(b)
	if sa, ok := na.(string); ok {
		if sb, ok := nb.(string); ok {
			return sa == sb
		}
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// toList returns v as a slice when it is list-typed. A comma-separated string
// counts as a list for the in/not_in operators only (see in()).
func toList(v any) ([]any, bool) {
	if isNil(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func contains(actual, expected any) bool {
	if list, ok := toList(actual); ok {
		for _, item := range list {
			if valuesEqual(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(toString(actual), toString(expected))
}

func in(actual, expected any) bool {
	candidates, ok := toList(expected)
	if !ok {
		if s, isStr := expected.(string); isStr {
			for _, part := range strings.Split(s, ",") {
				candidates = append(candidates, strings.TrimSpace(part))
			}
		} else if !isNil(expected) {
			candidates = []any{expected}
		}
	}

	// A list-typed actual is "in" when any element is a candidate.
	values, ok := toList(actual)
	if !ok {
		values = []any{actual}
	}
	for _, v := range values {
		for _, c := range candidates {
			if valuesEqual(v, c) {
				return true
			}
		}
	}
	return false
}

// order compares actual against expected. Numbers compare numerically,
// clearance and sensitivity compare by rank, everything else lexically.
func order(actual, expected any) (int, bool) {
	switch a := actual.(type) {
	case model.Clearance:
		b, ok := clearanceOf(expected)
		if !ok {
			return 0, false
		}
		return cmp.Compare(a.Rank(), b.Rank()), true
	case model.Sensitivity:
		b, ok := sensitivityOf(expected)
		if !ok {
			return 0, false
		}
		return cmp.Compare(a.Rank(), b.Rank()), true
	}

	af, aok := numberOf(actual)
	bf, bok := numberOf(expected)
	if aok && bok {
		return cmp.Compare(af, bf), true
	}
	if isNil(expected) {
		return 0, false
	}
	return strings.Compare(toString(actual), toString(expected)), true
}

func numberOf(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func clearanceOf(v any) (model.Clearance, bool) {
	switch x := v.(type) {
	case model.Clearance:
		return x, x.Valid()
	case string:
		c, err := model.ParseClearance(x)
		return c, err == nil
	}
	if f, ok := toFloat(v); ok {
		c := model.Clearance(int(f))
		return c, c.Valid()
	}
	return 0, false
}

func sensitivityOf(v any) (model.Sensitivity, bool) {
	switch x := v.(type) {
	case model.Sensitivity:
		return x, x.Valid()
	case string:
		s, err := model.ParseSensitivity(x)
		return s, err == nil
	}
	if f, ok := toFloat(v); ok {
		s := model.Sensitivity(int(f))
		return s, s.Valid()
	}
	return 0, false
}
