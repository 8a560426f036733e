// Package client calls a remote accessgate server. Evaluation fails closed:
// any transport error yields a Deny result.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/accessgate/api/accessgate/v1"
	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
)

// DefaultTimeout bounds every call.
const DefaultTimeout = 5 * time.Second

// FailClosedPolicyID marks results synthesized by the client when the
// server could not decide.
const FailClosedPolicyID = "failclosed.unreachable"

// RateLimitedPolicyID marks denials for a subject over the server's rate
// limit.
const RateLimitedPolicyID = "ratelimit.exceeded"

// Client connects to an accessgate gRPC server.
type Client struct {
	conn    *grpc.ClientConn
	rpc     pb.GatewayClient
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithConn uses an existing connection instead of dialing addr.
func WithConn(conn *grpc.ClientConn) Option {
	return func(c *Client) { c.conn = conn }
}

// New creates a client for addr. The connection is lazy: an unreachable
// server surfaces on the first call, not here.
func New(addr string, opts ...Option) (*Client, error) {
	c := &Client{timeout: DefaultTimeout}
	for _, o := range opts {
		o(c)
	}
	if c.conn == nil {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to access server: %w", err)
		}
		c.conn = conn
	}
	c.rpc = pb.NewGatewayClient(c.conn)
	return c, nil
}

// Evaluate asks the server for a decision. A malformed request returns an
// error wrapping model.ErrInvalidRequest. Every other failure returns a Deny
// result and a nil error.
func (c *Client) Evaluate(ctx context.Context, req *model.AccessRequest) (model.AccessResult, error) {
	return c.evaluate(ctx, pb.EvaluateRequest{AccessRequest: *req})
}

// Explain is Evaluate with the per-policy trace filled in.
func (c *Client) Explain(ctx context.Context, req *model.AccessRequest) (model.AccessResult, error) {
	return c.evaluate(ctx, pb.EvaluateRequest{AccessRequest: *req, Explain: true})
}

func (c *Client) evaluate(ctx context.Context, req pb.EvaluateRequest) (model.AccessResult, error) {
	var res model.AccessResult
	err := c.call(ctx, pb.MethodEvaluateAccess, req, &res)
	if err == nil {
		return res, nil
	}

	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.InvalidArgument:
		return model.AccessResult{}, fmt.Errorf("%w: %s", model.ErrInvalidRequest, st.Message())
	case codes.ResourceExhausted:
		return model.AccessResult{
			Decision:        model.Deny,
			MatchedPolicyID: RateLimitedPolicyID,
			Reason:          st.Message(),
			EvaluatedAt:     time.Now().UTC(),
		}, nil
	case codes.Internal:
		// The server attaches its forced denial when the audit write failed.
		for _, d := range st.Details() {
			if s, ok := d.(*structpb.Struct); ok && pb.Decode(s, &res) == nil {
				res.Decision = model.Deny
				return res, nil
			}
		}
	}
	return model.AccessResult{
		Decision:        model.Deny,
		MatchedPolicyID: FailClosedPolicyID,
		Reason:          fmt.Sprintf("policy server unreachable: %v", err),
		EvaluatedAt:     time.Now().UTC(),
	}, nil
}

// VerifyAudit checks the server's chain. persisted selects the full stored
// history instead of the retained window.
func (c *Client) VerifyAudit(ctx context.Context, persisted bool) (audit.VerifyResult, error) {
	var res audit.VerifyResult
	err := c.call(ctx, pb.MethodVerifyAuditChain, pb.VerifyRequest{Persisted: persisted}, &res)
	return res, err
}

// AuditLog returns retained entries matching req.
func (c *Client) AuditLog(ctx context.Context, req pb.AuditLogRequest) ([]audit.Entry, error) {
	var res pb.AuditLogResponse
	if err := c.call(ctx, pb.MethodGetAuditLog, req, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (c *Client) Metrics(ctx context.Context) (access.Metrics, error) {
	var m access.Metrics
	err := c.call(ctx, pb.MethodGetMetrics, struct{}{}, &m)
	return m, err
}

// CheckCrossDomain reports whether source may reach target. Failure to ask
// is reported as not allowed.
func (c *Client) CheckCrossDomain(ctx context.Context, source, target string) (bool, string) {
	var res pb.CrossDomainResponse
	err := c.call(ctx, pb.MethodCheckCrossDomain, pb.CrossDomainRequest{SourceTenant: source, TargetTenant: target}, &res)
	if err != nil {
		return false, fmt.Sprintf("policy server unreachable: %v", err)
	}
	return res.Allowed, res.Reason
}

// Redact returns payload as visible at clearance.
func (c *Client) Redact(ctx context.Context, payload map[string]any, clearance model.Clearance) (map[string]any, error) {
	var res pb.RedactResponse
	if err := c.call(ctx, pb.MethodRedact, pb.RedactRequest{Clearance: clearance, Payload: payload}, &res); err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := pb.Encode(in)
	if err != nil {
		return err
	}
	resp, err := c.rpc.Call(ctx, method, msg)
	if err != nil {
		return err
	}
	return pb.Decode(resp, out)
}
