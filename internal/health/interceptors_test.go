package health

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

var checkInfo = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

func bufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRecoveryInterceptor(t *testing.T) {
	for _, tc := range []struct {
		name     string
		handler  grpc.UnaryHandler
		wantCode codes.Code
		wantLog  string
	}{
		{"NoPanic", func(context.Context, any) (any, error) { return "ok", nil }, codes.OK, ""},
		{"Panic", func(context.Context, any) (any, error) { panic("boom") }, codes.Internal, "panic=boom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logger, buf := bufLogger()
			_, err := recoveryInterceptor(logger)(context.Background(), nil, checkInfo, tc.handler)
			if got := status.Code(err); got != tc.wantCode {
				t.Fatalf("code = %v, want %v", got, tc.wantCode)
			}
			if tc.wantLog != "" && !strings.Contains(buf.String(), tc.wantLog) {
				t.Errorf("log = %q, want it to contain %q", buf.String(), tc.wantLog)
			}
		})
	}
}

func TestLoggingInterceptor(t *testing.T) {
	serving := func(context.Context, any) (any, error) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	unknown := func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	for _, tc := range []struct {
		name     string
		service  string
		handler  grpc.UnaryHandler
		wantCode codes.Code
		wantLog  []string
	}{
		{"Overall", "", serving, codes.OK, []string{"level=DEBUG", "service=*", "status=SERVING"}},
		{"Actor", ServicePrefix + "gateway", serving, codes.OK, []string{"service=insectcam.gateway"}},
		{"Unknown", "nope", unknown, codes.NotFound, []string{"level=WARN", "service=nope", "code=NotFound"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logger, buf := bufLogger()
			req := &healthpb.HealthCheckRequest{Service: tc.service}
			_, err := loggingInterceptor(logger)(context.Background(), req, checkInfo, tc.handler)
			if got := status.Code(err); got != tc.wantCode {
				t.Fatalf("code = %v, want %v", got, tc.wantCode)
			}
			for _, want := range tc.wantLog {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("log = %q, missing %q", buf.String(), want)
				}
			}
		})
	}
}
