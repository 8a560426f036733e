package policy

import (
	"testing"

	"github.com/ppiankov/accessgate/internal/model"
)

func TestCompareOperators(t *testing.T) {
	tests := []struct {
		name     string
		op       Operator
		actual   any
		expected any
		want     bool
	}{
		{"equals string", OpEquals, "read", "read", true},
		{"equals mismatch", OpEquals, "read", "write", false},
		{"equals int vs float", OpEquals, 3, 3.0, true},
		{"equals clearance vs name", OpEquals, model.ClearanceHigh, "high", true},
		{"not_equals", OpNotEquals, "a", "b", true},
		{"contains list member", OpContains, []string{"analyst", "officer"}, "officer", true},
		{"contains list non-member", OpContains, []string{"analyst"}, "officer", false},
		{"contains substring", OpContains, "case-file-2024", "file", true},
		{"not_contains substring", OpNotContains, "case-file", "warrant", true},
		{"in list", OpIn, "CA", []any{"CA", "NV"}, true},
		{"in comma string", OpIn, "NV", "CA, NV", true},
		{"in list actual", OpIn, []string{"TX", "NV"}, []string{"CA", "NV"}, true},
		{"not_in", OpNotIn, "OR", []string{"CA", "NV"}, true},
		{"greater_than numbers", OpGreaterThan, 10, 5, true},
		{"greater_than numeric string", OpGreaterThan, "10", 9.5, true},
		{"less_than numbers", OpLessThan, 2.5, 3, true},
		{"greater_than clearance rank", OpGreaterThan, model.ClearanceTop, "elevated", true},
		{"less_than clearance rank", OpLessThan, model.ClearanceBasic, "standard", true},
		{"greater_than lexical", OpGreaterThan, "b", "a", true},
		{"starts_with", OpStartsWith, "case-123", "case-", true},
		{"ends_with", OpEndsWith, "report.pdf", ".pdf", true},
		{"ends_with mismatch", OpEndsWith, "report.pdf", ".doc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.op, tt.actual, tt.expected); got != tt.want {
				t.Errorf("Compare(%s, %v, %v) = %v, want %v", tt.op, tt.actual, tt.expected, got, tt.want)
			}
		})
	}
}

func TestCompareNilActual(t *testing.T) {
	for _, op := range []Operator{OpEquals, OpContains, OpIn, OpNotIn, OpGreaterThan, OpLessThan, OpStartsWith, OpEndsWith} {
		if Compare(op, nil, "x") {
			t.Errorf("%s against nil actual must fail", op)
		}
	}
	if !Compare(OpNotEquals, nil, "x") {
		t.Error("not_equals against nil actual with non-nil expected must pass")
	}
	if !Compare(OpNotContains, nil, "x") {
		t.Error("not_contains against nil actual with non-nil expected must pass")
	}
	if Compare(OpNotEquals, nil, nil) {
		t.Error("not_equals nil/nil must fail")
	}
	var nilSlice []string
	if Compare(OpContains, nilSlice, "x") {
		t.Error("typed nil slice must be treated as null")
	}
}

func TestResolveByAttributeType(t *testing.T) {
	subj := &Subject{
		Clearance:     model.ClearanceElevated,
		Roles:         []string{"analyst"},
		Jurisdictions: []string{"CA"},
		Attributes:    map[string]any{"department": "narcotics"},
	}
	req := &model.AccessRequest{
		TenantID:   "tenant-a",
		Action:     "read",
		Attributes: map[string]any{"case_type": "homicide"},
		SourceIP:   "10.0.0.1",
	}

	tests := []struct {
		attr AttributeType
		name string
		want any
	}{
		{AttrUser, "department", "narcotics"},
		{AttrUser, "missing", nil},
		{AttrResource, "case_type", "homicide"},
		{AttrAction, "", "read"},
		{AttrTenant, "", "tenant-a"},
		{AttrClearance, "", model.ClearanceElevated},
		{AttrEnvironment, "source_ip", nil},
		{AttrTime, "hour", nil},
		{AttrLocation, "", nil},
	}
	for _, tt := range tests {
		got := Resolve(PolicyCondition{AttributeType: tt.attr, AttributeName: tt.name}, subj, req)
		if got != tt.want {
			t.Errorf("Resolve(%s/%s) = %v, want %v", tt.attr, tt.name, got, tt.want)
		}
	}

	roles := Resolve(PolicyCondition{AttributeType: AttrRole}, subj, req)
	if r, ok := roles.([]string); !ok || len(r) != 1 || r[0] != "analyst" {
		t.Errorf("expected roles list, got %v", roles)
	}
}

func TestEvaluateConditionNegate(t *testing.T) {
	subj := &Subject{Roles: []string{"analyst"}}
	req := &model.AccessRequest{Action: "read"}

	c := PolicyCondition{AttributeType: AttrRole, Operator: OpContains, Value: "analyst"}
	if !EvaluateCondition(c, subj, req) {
		t.Fatal("expected role condition to match")
	}
	c.Negate = true
	if EvaluateCondition(c, subj, req) {
		t.Fatal("expected negated condition to fail")
	}
}

func TestNegateAppliesToNullResult(t *testing.T) {
	c := PolicyCondition{AttributeType: AttrEnvironment, AttributeName: "hour", Operator: OpEquals, Value: 9, Negate: true}
	if !EvaluateCondition(c, &Subject{}, &model.AccessRequest{}) {
		t.Fatal("negate must invert the failed comparison against null")
	}
}

func TestParseAttributeType(t *testing.T) {
	for i, name := range attributeTypeNames {
		got, err := ParseAttributeType(name)
		if err != nil || got != AttributeType(i) {
			t.Errorf("ParseAttributeType(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseAttributeType("device"); err == nil {
		t.Error("expected error for unknown attribute type")
	}
}
