package health

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// checkAttrs names the health service a Check asked about. The overall
// service is the empty string, logged as "*".
func checkAttrs(req any) []any {
	r, ok := req.(*healthpb.HealthCheckRequest)
	if !ok {
		return nil
	}
	svc := r.GetService()
	if svc == "" {
		svc = "*"
	}
	return []any{"service", svc}
}

// loggingInterceptor logs every unary call. Health checks arrive every few seconds
// from the supervisor or orchestrator, so only failures go above debug.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		attrs := append([]any{"method", info.FullMethod, "duration", time.Since(start)}, checkAttrs(req)...)
		if err != nil {
			logger.Warn("health rpc failed", append(attrs, "code", status.Code(err), "err", err)...)
		} else {
			if r, ok := resp.(*healthpb.HealthCheckResponse); ok {
				attrs = append(attrs, "status", r.GetStatus())
			}
			logger.Debug("health rpc", attrs...)
		}
		return resp, err
	}
}

// recoveryInterceptor turns a panicking handler into codes.Internal so a bad
// check never takes the health listener down.
func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("health rpc panicked",
					"method", info.FullMethod,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
