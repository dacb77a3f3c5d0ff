package grpcserver

import (
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"weakgate/infra/log"
)

// NewGRPCServer builds a grpc.Server carrying the Views service and the
// standard health service. Panics in handlers surface as codes.Internal.
func NewGRPCServer(srv ViewsServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	entry := log.Component("grpc")
	recovery := grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
		entry.WithField("panic", p).Error("handler panicked")
		return status.Errorf(codes.Internal, "panic: %v", p)
	})
	opts = append(opts, grpc.ChainUnaryInterceptor(
		grpc_logrus.UnaryServerInterceptor(entry),
		grpc_recovery.UnaryServerInterceptor(recovery),
	))

	gs := grpc.NewServer(opts...)
	Register(gs, srv)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return gs, hs
}
