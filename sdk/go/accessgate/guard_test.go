package accessgate

import (
	"context"
	"errors"
	"testing"
)

func requireBlocked(t *testing.T, err error) *BlockedError {
	t.Helper()
	var be *BlockedError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	return be
}

func caseRecord() map[string]any {
	return map[string]any{
		"case_id":            "case-2291",
		"summary":            "burglary, 4th street",
		"informant_identity": "CI-77",
		"witness_address":    "12 Elm St",
		"ssn":                "123-45-6789",
		"dob":                "1990-01-01",
	}
}

func TestWrapBlocksDenied(t *testing.T) {
	c := newTestClient(t)
	called := false
	wrapped := c.Wrap(func(ctx context.Context, req Request) (map[string]any, error) {
		called = true
		return caseRecord(), nil
	})

	req := detectiveRead()
	req.Action = "export"
	req.ResourceType = "evidence"
	_, err := wrapped(context.Background(), req)

	blocked := requireBlocked(t, err)
	if blocked.Decision != Deny {
		t.Errorf("expected deny, got %s", blocked.Decision)
	}
	if blocked.PolicyID != "policy-no-export" {
		t.Errorf("expected policy-no-export, got %q", blocked.PolicyID)
	}
	if called {
		t.Error("inner function should not be called on deny")
	}
}

func TestWrapRedactsAllowedPayload(t *testing.T) {
	c := newTestClient(t)
	wrapped := c.Wrap(func(ctx context.Context, req Request) (map[string]any, error) {
		return caseRecord(), nil
	})

	out, err := wrapped(context.Background(), detectiveRead())
	if err != nil {
		t.Fatalf("wrapped: %v", err)
	}
	for _, k := range []string{"informant_identity", "witness_address", "ssn"} {
		if _, ok := out[k]; ok {
			t.Errorf("%s should be redacted for a detective", k)
		}
	}
	if out["dob"] != "****-**-**" {
		t.Errorf("dob should be masked, got %v", out["dob"])
	}
	if out["summary"] != "burglary, 4th street" {
		t.Errorf("summary should pass through, got %v", out["summary"])
	}
}

func TestWrapBlocksInvalidRequest(t *testing.T) {
	c := newTestClient(t)
	wrapped := c.Wrap(func(ctx context.Context, req Request) (map[string]any, error) {
		t.Fatal("inner function should not be called")
		return nil, nil
	})

	req := detectiveRead()
	req.TenantID = ""
	blocked := requireBlocked(t, func() error { _, err := wrapped(context.Background(), req); return err }())
	if blocked.Reason == "" {
		t.Error("expected a reason")
	}
}

func TestWrapWithExplainRecordsTrace(t *testing.T) {
	c := newTestClient(t)
	wrapped := c.Wrap(func(ctx context.Context, req Request) (map[string]any, error) {
		return nil, nil
	}, WrapWithExplain())

	req := detectiveRead()
	req.Attributes = map[string]any{"status": "sealed"}
	_, err := wrapped(context.Background(), req)
	if blocked := requireBlocked(t, err); len(blocked.Trace) == 0 {
		t.Error("expected a trace on the blocked error")
	}
}

func TestWrapPassesInnerError(t *testing.T) {
	c := newTestClient(t)
	boom := errors.New("boom")
	wrapped := c.Wrap(func(ctx context.Context, req Request) (map[string]any, error) {
		return nil, boom
	})
	if _, err := wrapped(context.Background(), detectiveRead()); !errors.Is(err, boom) {
		t.Errorf("expected inner error, got %v", err)
	}
}
