package accessgate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/model"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.yaml")
	if err := os.WriteFile(path, []byte(bundle.DefaultYAML()), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := New(append([]Option{WithBundle(path), WithMaxAuditEntries(1000)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func detectiveRead() Request {
	return Request{
		TenantID:            "metro-pd",
		UserID:              "det-harris",
		ResourceType:        "case_file",
		ResourceID:          "case-2291",
		Action:              "read",
		ResourceSensitivity: SensRestricted,
		Attributes:          map[string]any{"status": "open"},
	}
}

func TestEvaluateAllowAndDeny(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.Evaluate(ctx, detectiveRead())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Decision != Allow {
		t.Fatalf("expected allow, got %s (%s)", res.Decision, res.Reason)
	}
	if res.AuditEntryID == "" {
		t.Error("expected an audit entry id")
	}

	sealed := detectiveRead()
	sealed.Attributes = map[string]any{"status": "sealed"}
	res, err = c.Evaluate(ctx, sealed)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Decision != Deny {
		t.Errorf("expected deny for sealed case, got %s", res.Decision)
	}

	m := c.Metrics()
	if m.TotalRequests != 2 || m.Allowed != 1 || m.Denied != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if vr := c.VerifyAudit(); !vr.Valid || vr.Entries != 2 {
		t.Errorf("unexpected verify result: %+v", vr)
	}
}

func TestExplainCarriesTrace(t *testing.T) {
	c := newTestClient(t)
	res, err := c.Explain(context.Background(), detectiveRead())
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if len(res.Trace) == 0 {
		t.Error("expected a trace")
	}
}

func TestCheckCollapsesInvalidRequest(t *testing.T) {
	c := newTestClient(t)
	req := detectiveRead()
	req.UserID = ""

	if _, err := c.Evaluate(context.Background(), req); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
	res := c.Check(context.Background(), req)
	if res.Decision != Deny || res.Reason == "" {
		t.Errorf("expected deny with reason, got %+v", res)
	}
}

func TestCrossDomainAndClosedMode(t *testing.T) {
	c := newTestClient(t)
	if ok, reason := c.CrossDomain("metro-pd", "county-so"); !ok {
		t.Errorf("expected municipal -> county allowed: %s", reason)
	}
	if ok, _ := c.CrossDomain("metro-pd", "state-dot"); !ok {
		t.Error("missing target config should be open by default")
	}

	closed := newTestClient(t, WithClosedDomains())
	if ok, _ := closed.CrossDomain("metro-pd", "state-dot"); ok {
		t.Error("missing target config should be denied in closed mode")
	}
}

func TestAuditLogFileIsVerifiable(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	c := newTestClient(t, WithAuditLog(logPath))
	for range 3 {
		if _, err := c.Evaluate(context.Background(), detectiveRead()); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	res := audit.VerifyFile(logPath)
	if !res.Valid || res.Entries != 3 {
		t.Errorf("expected 3 valid entries on disk, got %+v", res)
	}
}
