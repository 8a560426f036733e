package accessgate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	c := newTestClient(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := c.Middleware(HeaderRequest("case_file", SensRestricted), next)

	tests := []struct {
		name   string
		method string
		user   string
		want   int
	}{
		{"detective reads", http.MethodGet, "det-harris", http.StatusOK},
		{"detective writes", http.MethodPost, "det-harris", http.StatusForbidden},
		{"unknown user", http.MethodGet, "nobody", http.StatusForbidden},
		{"no identity", http.MethodGet, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/cases/case-2291", nil)
			if tt.user != "" {
				r.Header.Set("X-Tenant-ID", "metro-pd")
				r.Header.Set("X-User-ID", tt.user)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if w.Code == http.StatusForbidden {
				var body map[string]any
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body["blocked"] != true || body["decision"] != "deny" {
					t.Errorf("unexpected body: %v", body)
				}
			}
		})
	}
}
