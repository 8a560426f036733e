package server

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/accessgate/api/accessgate/v1"
	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/config"
	"github.com/ppiankov/accessgate/internal/gateway"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/ratelimit"
)

const bufSize = 1024 * 1024

// testServer starts the service on an in-memory listener and returns a
// connected client.
func testServer(t *testing.T) (pb.GatewayClient, *gateway.Gateway, *grpc.ClientConn) {
	t.Helper()
	return testServerWith(t, Config{})
}

func testServerWith(t *testing.T, scfg Config) (pb.GatewayClient, *gateway.Gateway, *grpc.ClientConn) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bundle.DefaultYAML()), 0600))
	gw, err := gateway.New(config.Config{
		Bundle: path,
		Audit:  config.AuditConfig{MaxEntries: 1000},
	}, nil)
	require.NoError(t, err)

	srv := New(gw, scfg, nil)
	lis := bufconn.Listen(bufSize)
	go func() {
		if err := srv.ServeOn(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("serve: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		gw.Close()
	})
	return pb.NewGatewayClient(conn), gw, conn
}

func call(t *testing.T, c pb.GatewayClient, method string, in, out any) error {
	t.Helper()
	msg, err := pb.Encode(in)
	require.NoError(t, err)
	resp, err := c.Call(context.Background(), method, msg)
	if err != nil {
		return err
	}
	require.NoError(t, pb.Decode(resp, out))
	return nil
}

func detectiveRequest() pb.EvaluateRequest {
	return pb.EvaluateRequest{AccessRequest: model.AccessRequest{
		TenantID:            "metro-pd",
		UserID:              "det-harris",
		ResourceType:        "case_file",
		ResourceID:          "case-2291",
		Action:              "read",
		RequesterClearance:  model.ClearanceStandard,
		ResourceSensitivity: model.SensRestricted,
		Attributes:          map[string]any{"status": "open"},
	}}
}

func TestEvaluateAccessAllow(t *testing.T) {
	c, _, _ := testServer(t)

	var res model.AccessResult
	require.NoError(t, call(t, c, pb.MethodEvaluateAccess, detectiveRequest(), &res))
	assert.Equal(t, model.Allow, res.Decision)
	assert.Equal(t, "policy-detective-case-read", res.MatchedPolicyID)
	assert.True(t, res.AuditLogged)
	assert.NotEmpty(t, res.AuditEntryID)
	assert.Empty(t, res.Trace)
}

func TestEvaluateAccessRateLimited(t *testing.T) {
	c, gw, _ := testServerWith(t, Config{RateLimit: ratelimit.Limit{MaxRequests: 2, Window: time.Hour}})

	var res model.AccessResult
	for range 2 {
		require.NoError(t, call(t, c, pb.MethodEvaluateAccess, detectiveRequest(), &res))
	}
	err := call(t, c, pb.MethodEvaluateAccess, detectiveRequest(), &res)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, 2, gw.VerifyAuditChain().Entries, "rate-limited calls are not audited")

	other := detectiveRequest()
	other.UserID = "analyst-kim"
	require.NoError(t, call(t, c, pb.MethodEvaluateAccess, other, &res))
}

func TestEvaluateAccessExplain(t *testing.T) {
	c, _, _ := testServer(t)

	req := detectiveRequest()
	req.Explain = true
	var res model.AccessResult
	require.NoError(t, call(t, c, pb.MethodEvaluateAccess, req, &res))
	assert.NotEmpty(t, res.Trace)
}

func TestEvaluateAccessInvalidArgument(t *testing.T) {
	c, gw, _ := testServer(t)

	req := detectiveRequest()
	req.UserID = ""
	err := call(t, c, pb.MethodEvaluateAccess, req, &model.AccessResult{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, gw.AuditLog(audit.Filter{}), "rejected requests are not audited")

	bad := &structpb.Struct{Fields: map[string]*structpb.Value{
		"tenant_id":           structpb.NewStringValue("metro-pd"),
		"requester_clearance": structpb.NewStringValue("godlike"),
	}}
	_, err = c.Call(context.Background(), pb.MethodEvaluateAccess, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEvaluateAccessRequiresBothLevels(t *testing.T) {
	c, gw, _ := testServer(t)

	for _, drop := range []string{"resource_sensitivity", "requester_clearance"} {
		t.Run(drop, func(t *testing.T) {
			msg, err := pb.Encode(detectiveRequest())
			require.NoError(t, err)
			delete(msg.Fields, drop)

			_, err = c.Call(context.Background(), pb.MethodEvaluateAccess, msg)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
			assert.Contains(t, status.Convert(err).Message(), drop)
		})
	}

	msg, err := pb.Encode(detectiveRequest())
	require.NoError(t, err)
	msg.Fields["resource_sensitivity"] = structpb.NewNullValue()
	_, err = c.Call(context.Background(), pb.MethodEvaluateAccess, msg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, gw.AuditLog(audit.Filter{}))
}

func TestVerifyAndAuditLog(t *testing.T) {
	c, _, _ := testServer(t)

	for range 3 {
		require.NoError(t, call(t, c, pb.MethodEvaluateAccess, detectiveRequest(), &model.AccessResult{}))
	}
	other := detectiveRequest()
	other.UserID = "analyst-kim"
	require.NoError(t, call(t, c, pb.MethodEvaluateAccess, other, &model.AccessResult{}))

	var vr audit.VerifyResult
	require.NoError(t, call(t, c, pb.MethodVerifyAuditChain, pb.VerifyRequest{}, &vr))
	assert.True(t, vr.Valid)
	assert.Equal(t, 4, vr.Entries)
	assert.Equal(t, -1, vr.ErrorIndex)

	var log pb.AuditLogResponse
	require.NoError(t, call(t, c, pb.MethodGetAuditLog, pb.AuditLogRequest{UserID: "det-harris", Limit: 2}, &log))
	assert.Equal(t, 2, log.Count)
	require.Len(t, log.Entries, 2)
	assert.Equal(t, model.Allow, log.Entries[0].Decision)
	assert.NotEmpty(t, log.Entries[1].ChainHash)

	var denies pb.AuditLogResponse
	require.NoError(t, call(t, c, pb.MethodGetAuditLog, pb.AuditLogRequest{Decision: model.Deny}, &denies))
	assert.Equal(t, 1, denies.Count)

	err := call(t, c, pb.MethodGetAuditLog, pb.AuditLogRequest{Limit: -1}, &log)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetMetrics(t *testing.T) {
	c, _, _ := testServer(t)
	require.NoError(t, call(t, c, pb.MethodEvaluateAccess, detectiveRequest(), &model.AccessResult{}))

	var m access.Metrics
	require.NoError(t, call(t, c, pb.MethodGetMetrics, struct{}{}, &m))
	assert.EqualValues(t, 1, m.TotalRequests)
	assert.EqualValues(t, 1, m.Allowed)
	assert.Equal(t, 1, m.Requests24h)
	assert.Equal(t, 3, m.ActivePolicies)
	assert.Equal(t, 1, m.TenantsEncrypted)
}

func TestCheckCrossDomain(t *testing.T) {
	c, _, _ := testServer(t)

	var res pb.CrossDomainResponse
	require.NoError(t, call(t, c, pb.MethodCheckCrossDomain,
		pb.CrossDomainRequest{SourceTenant: "metro-pd", TargetTenant: "county-so"}, &res))
	assert.True(t, res.Allowed)

	err := call(t, c, pb.MethodCheckCrossDomain, pb.CrossDomainRequest{SourceTenant: "metro-pd"}, &res)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRedact(t *testing.T) {
	c, _, _ := testServer(t)

	var res pb.RedactResponse
	require.NoError(t, call(t, c, pb.MethodRedact, pb.RedactRequest{
		Clearance: model.ClearanceBasic,
		Payload:   map[string]any{"case_id": "c-1", "informant_identity": "CI-17"},
	}, &res))
	assert.Equal(t, "c-1", res.Payload["case_id"])
	assert.NotContains(t, res.Payload, "informant_identity")
}

func TestRedactRequiresClearance(t *testing.T) {
	c, _, _ := testServer(t)

	payload, err := structpb.NewStruct(map[string]any{"informant_identity": "CI-17"})
	require.NoError(t, err)
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"payload": structpb.NewStructValue(payload),
	}}
	_, err = c.Call(context.Background(), pb.MethodRedact, msg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealth(t *testing.T) {
	_, _, conn := testServer(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: pb.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

type countingReloader struct{ n atomic.Int32 }

func (c *countingReloader) Reload() error { c.n.Add(1); return nil }

func TestReloaderDebounces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies: []\n"), 0600))

	target := &countingReloader{}
	r, err := NewReloader(target, []string{path, "", filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Watching())
	r.debounce = 50 * time.Millisecond
	r.reloaded = make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Give the watcher a moment to start before writing.
	time.Sleep(50 * time.Millisecond)
	for i := range 5 {
		require.NoError(t, os.WriteFile(path, []byte("policies: []\n# "+string(rune('a'+i))+"\n"), 0600))
	}

	select {
	case err := <-r.reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reload did not fire")
	}
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), target.n.Load(), "writes within the debounce window coalesce")
}
