package policy

import (
	"testing"

	"github.com/ppiankov/accessgate/internal/model"
)

func standardSubject() *Subject {
	return &Subject{
		Clearance:     model.ClearanceStandard,
		Roles:         []string{"detective"},
		Jurisdictions: []string{"CA"},
	}
}

func TestMatchAllGatesPass(t *testing.T) {
	p := &AccessPolicy{
		ID:                    "p1",
		Effect:                model.Allow,
		RequiredClearance:     model.ClearanceStandard,
		RequiredRoles:         []string{"supervisor", "detective"},
		RequiredJurisdictions: []string{"CA", "NV"},
		AllowedActions:        []string{"read", "search"},
		DeniedActions:         []string{"delete"},
		Conditions: []PolicyCondition{
			{AttributeType: AttrTenant, Operator: OpEquals, Value: "tenant-a"},
		},
	}
	req := &model.AccessRequest{TenantID: "tenant-a", Action: "read"}

	r := Match(p, standardSubject(), req)
	if !r.Matched {
		t.Fatalf("expected match, failed at %s", r.FailedAt)
	}
	if r.ConditionsEvaluated != 6 || r.ConditionsMatched != 6 {
		t.Errorf("expected 6/6 gates, got %d/%d", r.ConditionsMatched, r.ConditionsEvaluated)
	}
}

func TestMatchShortCircuitsOnFirstFailure(t *testing.T) {
	p := &AccessPolicy{
		ID:                "p1",
		Effect:            model.Allow,
		RequiredClearance: model.ClearanceHigh,
		RequiredRoles:     []string{"detective"},
	}
	r := Match(p, standardSubject(), &model.AccessRequest{Action: "read"})
	if r.Matched {
		t.Fatal("expected no match")
	}
	if r.FailedAt != "required_clearance" {
		t.Errorf("expected failure at required_clearance, got %s", r.FailedAt)
	}
	if r.ConditionsEvaluated != 1 || r.ConditionsMatched != 0 {
		t.Errorf("expected 0/1, got %d/%d", r.ConditionsMatched, r.ConditionsEvaluated)
	}
}

func TestMatchSkipsEmptyGates(t *testing.T) {
	p := &AccessPolicy{ID: "p1", Effect: model.Deny}
	r := Match(p, &Subject{}, &model.AccessRequest{Action: "read"})
	if !r.Matched {
		t.Fatal("a policy with no gates matches everything in scope")
	}
	if r.ConditionsEvaluated != 0 {
		t.Errorf("expected no gates evaluated, got %d", r.ConditionsEvaluated)
	}
}

func TestMatchDeniedActions(t *testing.T) {
	p := &AccessPolicy{ID: "p1", Effect: model.Allow, DeniedActions: []string{"delete"}}
	if Match(p, standardSubject(), &model.AccessRequest{Action: "delete"}).Matched {
		t.Error("denied action must not match")
	}
	if !Match(p, standardSubject(), &model.AccessRequest{Action: "read"}).Matched {
		t.Error("other actions must match")
	}
}

func TestMatchJurisdictionMismatch(t *testing.T) {
	p := &AccessPolicy{ID: "p1", Effect: model.Allow, RequiredJurisdictions: []string{"TX"}}
	r := Match(p, standardSubject(), &model.AccessRequest{Action: "read"})
	if r.Matched || r.FailedAt != "required_jurisdictions" {
		t.Errorf("expected jurisdiction failure, got %+v", r)
	}
}

func TestMatchConditionOrder(t *testing.T) {
	p := &AccessPolicy{
		ID:     "p1",
		Effect: model.Allow,
		Conditions: []PolicyCondition{
			{AttributeType: AttrAction, Operator: OpEquals, Value: "read"},
			{AttributeType: AttrResource, AttributeName: "case_status", Operator: OpEquals, Value: "open"},
			{AttributeType: AttrTenant, Operator: OpEquals, Value: "never-reached"},
		},
	}
	req := &model.AccessRequest{Action: "read", Attributes: map[string]any{"case_status": "sealed"}}
	r := Match(p, standardSubject(), req)
	if r.Matched {
		t.Fatal("expected no match")
	}
	if r.FailedAt != "conditions[1]" {
		t.Errorf("expected failure at conditions[1], got %s", r.FailedAt)
	}
	if r.ConditionsEvaluated != 2 || r.ConditionsMatched != 1 {
		t.Errorf("expected 1/2, got %d/%d", r.ConditionsMatched, r.ConditionsEvaluated)
	}
}

func TestApplicableScopeAndOrder(t *testing.T) {
	policies := []AccessPolicy{
		{ID: "global-low", Priority: 500, Enabled: true},
		{ID: "tenant-b", TenantID: "tenant-b", Priority: 1, Enabled: true},
		{ID: "tenant-a-case", TenantID: "tenant-a", Priority: 10, ResourcePatterns: []string{"case"}, Enabled: true},
		{ID: "wildcard", Priority: 10, ResourcePatterns: []string{"*"}, Enabled: true},
		{ID: "other-resource", Priority: 5, ResourcePatterns: []string{"vehicle"}, Enabled: true},
		{ID: "disabled", Priority: 0, Enabled: false},
	}

	got := Applicable(policies, "tenant-a", "case")
	want := []string{"tenant-a-case", "wildcard", "global-low"}
	if len(got) != len(want) {
		t.Fatalf("expected %d policies, got %d: %+v", len(want), len(got), got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestValidate(t *testing.T) {
	good := AccessPolicy{ID: "p", Effect: model.Allow}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []AccessPolicy{
		{Effect: model.Allow},
		{ID: "p", Effect: "permit"},
		{ID: "p", Effect: model.Allow, RequiredClearance: model.Clearance(9)},
		{ID: "p", Effect: model.Allow, Conditions: []PolicyCondition{{AttributeType: AttrUser, Operator: "regex"}}},
		{ID: "p", Effect: model.Allow, Conditions: []PolicyCondition{{AttributeType: AttributeType(99), Operator: OpEquals}}},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
