package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
)

func init() {
	retryDelay = 10 * time.Millisecond
}

func denyEntry() audit.Entry {
	return audit.Entry{
		ID:             "e-1",
		TenantID:       "metro-pd",
		UserID:         "analyst-kim",
		Action:         "read",
		ResourceType:   "case_file",
		ResourceID:     "case-2291",
		Decision:       model.Deny,
		RequestDetails: map[string]any{"resource_sensitivity": "secret"},
		ResponseDetails: map[string]any{
			"reason": "insufficient clearance",
		},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ChainHash: "abc",
	}
}

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, err := NewDispatcher([]Config{{URL: srv.URL, Events: []string{"deny"}}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Write(denyEntry()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	allow := denyEntry()
	allow.Decision = model.Allow
	d.Write(allow)
	d.Close()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	var called atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	d, err := NewDispatcher([]Config{
		{URL: srv1.URL, Events: []string{"deny"}},
		{URL: srv2.URL, Events: []string{"deny", "conditional"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	d.Dispatch(EventFromEntry(denyEntry()))
	d.Close()

	if called.Load() != 2 {
		t.Errorf("expected 2 calls (both webhooks match), got %d", called.Load())
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	if d, err := NewDispatcher(nil, nil); d != nil || err != nil {
		t.Errorf("empty config: got %v, %v", d, err)
	}
	bad := []Config{
		{Events: []string{"deny"}},
		{URL: "http://x", Format: "teams", Events: []string{"deny"}},
		{URL: "http://x"},
		{URL: "http://x", Events: []string{"require_approval"}},
	}
	for _, c := range bad {
		if _, err := NewDispatcher([]Config{c}, nil); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}

func TestSendHeadersAndBody(t *testing.T) {
	var got Event
	var auth, auditID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		auditID = r.Header.Get(AuditIDHeader)
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := Config{URL: srv.URL, Format: FormatGeneric, Events: []string{"deny"}, Headers: map[string]string{"Authorization": "Bearer t"}}
	if err := Send(context.Background(), cfg, EventFromEntry(denyEntry())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer t" {
		t.Errorf("expected custom header, got %q", auth)
	}
	if auditID != "e-1" {
		t.Errorf("expected audit id header e-1, got %q", auditID)
	}
	if got.Resource != "case_file/case-2291" || got.Reason != "insufficient clearance" || got.Sensitivity != "secret" {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestSendRetriesOn5xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(context.Background(), Config{URL: srv.URL}, Event{Decision: "deny"}); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestSendNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := Send(context.Background(), Config{URL: srv.URL}, Event{AuditID: "e-9", Decision: "deny"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if de.Status != http.StatusForbidden || de.Retryable() || de.AuditID != "e-9" {
		t.Errorf("unexpected delivery error %+v", de)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := Send(context.Background(), Config{URL: srv.URL}, EventFromEntry(denyEntry()))
	var de *DeliveryError
	if !errors.As(err, &de) || de.Attempts != maxAttempts || de.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected %d failed attempts with 503, got %v", maxAttempts, err)
	}
	if int(attempts.Load()) != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, attempts.Load())
	}
}

func TestSendStopsRetryingWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Send(ctx, Config{URL: srv.URL}, Event{AuditID: "e-2", Decision: "deny"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFormatPayloads(t *testing.T) {
	ev := EventFromEntry(denyEntry())

	data, err := FormatPayload(FormatSlack, ev)
	if err != nil {
		t.Fatal(err)
	}
	var slack map[string]any
	if err := json.Unmarshal(data, &slack); err != nil {
		t.Fatal(err)
	}
	if _, ok := slack["blocks"]; !ok {
		t.Error("slack payload missing blocks")
	}

	data, err = FormatPayload(FormatPagerDuty, ev)
	if err != nil {
		t.Fatal(err)
	}
	var pd struct {
		DedupKey string `json:"dedup_key"`
		Payload  struct {
			Severity string `json:"severity"`
			Source   string `json:"source"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &pd); err != nil {
		t.Fatal(err)
	}
	if pd.Payload.Severity != "critical" || pd.Payload.Source != "accessgate" || pd.DedupKey != "e-1" {
		t.Errorf("unexpected pagerduty payload: %+v", pd)
	}
}

func TestSeverityFor(t *testing.T) {
	tests := map[string]string{
		"public":       "info",
		"restricted":   "warning",
		"confidential": "error",
		"top_secret":   "critical",
		"bogus":        "info",
	}
	for in, want := range tests {
		if got := severityFor(in); got != want {
			t.Errorf("severityFor(%q) = %q, want %q", in, got, want)
		}
	}
}
