// Package accessgatev1 defines the accessgate.v1.AccessGateway gRPC service.
//
// Messages are google.protobuf.Struct documents whose fields follow the JSON
// shape of the Go types (snake_case keys, enum names as strings), so the
// service needs no generated code on either side.
package accessgatev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "accessgate.v1.AccessGateway"

// Method names.
const (
	MethodEvaluateAccess   = "EvaluateAccess"
	MethodVerifyAuditChain = "VerifyAuditChain"
	MethodGetAuditLog      = "GetAuditLog"
	MethodGetMetrics       = "GetMetrics"
	MethodCheckCrossDomain = "CheckCrossDomain"
	MethodRedact           = "Redact"
)

// FullMethod returns the wire path of a method, e.g.
// "/accessgate.v1.AccessGateway/EvaluateAccess".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// GatewayServer is implemented by the gRPC transport.
type GatewayServer interface {
	EvaluateAccess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyAuditChain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAuditLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckCrossDomain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Redact(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type serverCall func(GatewayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call serverCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GatewayServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(GatewayServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the AccessGateway service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodEvaluateAccess, GatewayServer.EvaluateAccess),
		unary(MethodVerifyAuditChain, GatewayServer.VerifyAuditChain),
		unary(MethodGetAuditLog, GatewayServer.GetAuditLog),
		unary(MethodGetMetrics, GatewayServer.GetMetrics),
		unary(MethodCheckCrossDomain, GatewayServer.CheckCrossDomain),
		unary(MethodRedact, GatewayServer.Redact),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "accessgate/v1/gateway.proto",
}

// RegisterGatewayServer registers srv on s.
func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GatewayClient calls the AccessGateway service.
type GatewayClient interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type gatewayClient struct {
	cc grpc.ClientConnInterface
}

func NewGatewayClient(cc grpc.ClientConnInterface) GatewayClient {
	return &gatewayClient{cc: cc}
}

func (c *gatewayClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
