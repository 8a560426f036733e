package accessgate

import (
	"context"
)

// ToolFunc is the function signature that Wrap guards. The returned payload
// is redacted for the caller before Wrap hands it back.
type ToolFunc func(ctx context.Context, req Request) (map[string]any, error)

// Wrap returns a ToolFunc that evaluates access before calling fn.
// If access is not allowed, returns a *BlockedError without calling fn.
func (c *Client) Wrap(fn ToolFunc, opts ...WrapOption) ToolFunc {
	var wcfg wrapConfig
	for _, o := range opts {
		o(&wcfg)
	}

	return func(ctx context.Context, req Request) (map[string]any, error) {
		var (
			res Result
			err error
		)
		if wcfg.explain {
			res, err = c.gw.ExplainAccess(ctx, &req)
		} else {
			res, err = c.gw.EvaluateAccess(ctx, &req)
		}
		if err != nil && res.Reason == "" {
			res.Decision, res.Reason = Deny, err.Error()
		}
		if err != nil || !res.Allowed() {
			return nil, blocked(req, res)
		}

		payload, err := fn(ctx, req)
		if err != nil || payload == nil {
			return payload, err
		}
		return c.redactFor(req, payload), nil
	}
}

// redactFor filters payload by the requester's profile clearance. Without a
// profile it falls back to the clearance carried by the request.
func (c *Client) redactFor(req Request, payload map[string]any) map[string]any {
	cl := req.RequesterClearance
	if p, err := c.gw.GetProfile(req.TenantID, req.UserID); err == nil {
		cl = p.Clearance
	}
	return c.gw.Redact(payload, cl)
}
