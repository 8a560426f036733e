package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/model"
)

type fixedSource access.Metrics

func (f fixedSource) Metrics() access.Metrics { return access.Metrics(f) }

func TestObserveDecision(t *testing.T) {
	r := New(nil, nil)
	r.ObserveDecision("metro-pd", model.Allow, time.Millisecond)
	r.ObserveDecision("metro-pd", model.Deny, time.Millisecond)
	r.ObserveDecision("metro-pd", model.Deny, 2*time.Millisecond)

	if got := testutil.ToFloat64(r.decisions.WithLabelValues("metro-pd", "deny")); got != 2 {
		t.Errorf("deny count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.decisions.WithLabelValues("metro-pd", "allow")); got != 1 {
		t.Errorf("allow count = %v, want 1", got)
	}
}

func TestHandlerExposesSnapshot(t *testing.T) {
	src := fixedSource{ActivePolicies: 3, TenantsEncrypted: 1, Requests24h: 10, Denials24h: 4}
	r := New(src, func() int { return 10 })
	r.ObserveRPC("/accessgate.v1.AccessGateway/EvaluateAccess", "OK")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"accessgate_active_policies 3",
		"accessgate_tenants_encrypted 1",
		"accessgate_requests_24h 10",
		"accessgate_denials_24h 4",
		"accessgate_audit_entries 10",
		`accessgate_grpc_requests_total{code="OK",method="/accessgate.v1.AccessGateway/EvaluateAccess"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
