package health

import (
	"log/slog"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer serves h over the standard health protocol, with reflection
// so grpcurl and health-check clients work without a descriptor. A nil logger
// uses slog.Default().
func NewGRPCServer(h *Service, logger *slog.Logger) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			loggingInterceptor(logger),
		),
	)
	healthpb.RegisterHealthServer(srv, h.server)
	reflection.Register(srv)
	return srv
}
