package accessgate

import (
	"encoding/json"
	"net/http"
)

// RequestFunc maps an HTTP request to an access request. Returning false
// rejects the request with 401.
type RequestFunc func(r *http.Request) (Request, bool)

// Middleware returns an http.Handler that evaluates access on each request
// before passing to the next handler. Blocked requests receive a 403 with a
// JSON body.
func (c *Client) Middleware(extract RequestFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := extract(r)
		if !ok {
			writeBlocked(w, http.StatusUnauthorized, map[string]any{
				"blocked": true,
				"reason":  "missing identity",
			})
			return
		}

		res := c.Check(r.Context(), req)
		if !res.Allowed() {
			writeBlocked(w, http.StatusForbidden, map[string]any{
				"blocked":   true,
				"decision":  string(res.Decision),
				"reason":    res.Reason,
				"policy_id": res.MatchedPolicyID,
				"audit_id":  res.AuditEntryID,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HeaderRequest builds a RequestFunc that reads tenant and user from the
// X-Tenant-ID and X-User-ID headers. The resource type is fixed and the
// resource id is the URL path.
func HeaderRequest(resourceType string, sensitivity Sensitivity) RequestFunc {
	return func(r *http.Request) (Request, bool) {
		tenant, user := r.Header.Get("X-Tenant-ID"), r.Header.Get("X-User-ID")
		if tenant == "" || user == "" {
			return Request{}, false
		}
		action := "read"
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			action = "write"
		case http.MethodDelete:
			action = "delete"
		}
		return Request{
			TenantID:            tenant,
			UserID:              user,
			ResourceType:        resourceType,
			ResourceID:          r.URL.Path,
			Action:              action,
			ResourceSensitivity: sensitivity,
			SourceIP:            r.RemoteAddr,
		}, true
	}
}

func writeBlocked(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
