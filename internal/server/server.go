// Package server exposes a Gateway over gRPC and serves Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/accessgate/api/accessgate/v1"
	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/gateway"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/profile"
	"github.com/ppiankov/accessgate/internal/ratelimit"
)

// Config holds listener settings.
type Config struct {
	Port int
	// MetricsAddr serves /metrics over HTTP when non-empty.
	MetricsAddr string
	// RateLimit bounds EvaluateAccess calls per tenant/user.
	RateLimit ratelimit.Limit
}

// Server implements the AccessGateway gRPC service.
type Server struct {
	gw     *gateway.Gateway
	cfg    Config
	logger *zap.Logger

	limiter       *ratelimit.Limiter
	grpcServer    *grpc.Server
	health        *health.Server
	metricsServer *http.Server
}

var _ pb.GatewayServer = (*Server)(nil)

// New creates a gRPC server over gw.
func New(gw *gateway.Gateway, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		gw:      gw,
		cfg:     cfg,
		logger:  logger,
		health:  health.NewServer(),
		limiter: ratelimit.New(cfg.RateLimit),
	}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.observe))
	pb.RegisterGatewayServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", gw.MetricsHandler())
		s.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Serve listens on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("server: listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on an existing listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// ServeMetrics serves /metrics until GracefulStop. It returns nil at once
// when no metrics address is configured.
func (s *Server) ServeMetrics() error {
	if s.metricsServer == nil {
		return nil
	}
	s.logger.Info("metrics listening", zap.String("addr", s.metricsServer.Addr))
	if err := s.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: metrics: %w", err)
	}
	return nil
}

// GracefulStop marks the service not serving, drains RPCs and stops the
// metrics listener.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metricsServer.Shutdown(ctx)
	}
}

func (s *Server) observe(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	s.gw.Recorder().ObserveRPC(info.FullMethod, code.String())

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", code.String()),
	}
	switch code {
	case codes.OK:
		s.logger.Debug("rpc", fields...)
	case codes.InvalidArgument, codes.Canceled, codes.DeadlineExceeded:
		s.logger.Info("rpc rejected", append(fields, zap.Error(err))...)
	default:
		s.logger.Error("rpc failed", append(fields, zap.Error(err))...)
	}
	return resp, err
}

// EvaluateAccess decides one request. A malformed request, including one
// that omits either level, is InvalidArgument and a subject over its rate
// limit is ResourceExhausted; neither reaches the audit chain. An audit failure is Internal with the
// forced denial attached as a status detail.
func (s *Server) EvaluateAccess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := pb.RequireFields(in, pb.EvaluateRequiredFields...); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var req pb.EvaluateRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if rl := s.limiter.Allow(profile.Key(req.TenantID, req.UserID)); rl.Exceeded {
		s.logger.Warn("rate limited", zap.String("subject", rl.Key), zap.Int("limit", rl.Limit))
		return nil, status.Error(codes.ResourceExhausted, rl.Reason)
	}

	eval := s.gw.EvaluateAccess
	if req.Explain {
		eval = s.gw.ExplainAccess
	}
	res, err := eval(ctx, &req.AccessRequest)
	out, encErr := pb.Encode(res)
	if encErr != nil {
		return nil, status.Error(codes.Internal, encErr.Error())
	}

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, model.ErrInvalidRequest):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, access.ErrAuditFailed):
		st := status.New(codes.Internal, res.Reason)
		if detailed, derr := st.WithDetails(out); derr == nil {
			st = detailed
		}
		return nil, st.Err()
	}
	return nil, rpcError(err)
}

func (s *Server) VerifyAuditChain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.VerifyRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res := s.gw.VerifyAuditChain()
	if req.Persisted {
		res = s.gw.VerifyPersistedAudit()
	}
	return encode(res)
}

func (s *Server) GetAuditLog(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.AuditLogRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	entries := s.gw.AuditLog(req.Filter())
	return encode(pb.AuditLogResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) GetMetrics(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.gw.Metrics())
}

func (s *Server) CheckCrossDomain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.CrossDomainRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SourceTenant == "" || req.TargetTenant == "" {
		return nil, status.Error(codes.InvalidArgument, "source_tenant and target_tenant are required")
	}
	ok, reason := s.gw.ExplainCrossDomain(req.SourceTenant, req.TargetTenant)
	return encode(pb.CrossDomainResponse{Allowed: ok, Reason: reason})
}

func (s *Server) Redact(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := pb.RequireFields(in, pb.RedactRequiredFields...); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var req pb.RedactRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return encode(pb.RedactResponse{Payload: s.gw.Redact(req.Payload, req.Clearance)})
}

func encode(v any) (*structpb.Struct, error) {
	out, err := pb.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func rpcError(err error) error {
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}
