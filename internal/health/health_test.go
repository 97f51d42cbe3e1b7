package health

import (
	"context"
	"io"
	"log/slog"
	"net"
	"slices"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dialBufconn(t *testing.T, h *Service) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestServiceTracksActors(t *testing.T) {
	h := NewService("sessions", "gateway")
	c := dialBufconn(t, h)

	const (
		serving    = healthpb.HealthCheckResponse_SERVING
		notServing = healthpb.HealthCheckResponse_NOT_SERVING
	)
	for _, tc := range []struct {
		name        string
		set         func()
		wantOverall healthpb.HealthCheckResponse_ServingStatus
		wantGateway healthpb.HealthCheckResponse_ServingStatus
		wantDown    []string
	}{
		{"Initial", func() {}, notServing, notServing, []string{"gateway", "sessions"}},
		{"OneUp", func() { h.SetActor("sessions", true) }, notServing, notServing, []string{"gateway"}},
		{"AllUp", func() { h.SetActor("gateway", true) }, serving, serving, nil},
		{"GatewayExits", func() { h.SetActor("gateway", false) }, notServing, notServing, []string{"gateway"}},
		{"GatewayRestarted", func() { h.SetActor("gateway", true) }, serving, serving, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.set()
			if got := check(t, c, ""); got != tc.wantOverall {
				t.Errorf("overall = %v, want %v", got, tc.wantOverall)
			}
			if got := check(t, c, ServicePrefix+"gateway"); got != tc.wantGateway {
				t.Errorf("gateway = %v, want %v", got, tc.wantGateway)
			}
			if got := h.Down(); !slices.Equal(got, tc.wantDown) {
				t.Errorf("Down = %v, want %v", got, tc.wantDown)
			}
		})
	}
}

func TestUnknownService(t *testing.T) {
	c := dialBufconn(t, NewService("sessions"))
	_, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "insectcam.nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("Check unknown = %v, want NotFound", err)
	}
}

func TestShutdown(t *testing.T) {
	h := NewService("sessions")
	c := dialBufconn(t, h)
	h.SetActor("sessions", true)
	h.Shutdown()
	h.SetActor("sessions", true)
	if got := check(t, c, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall after shutdown = %v, want NOT_SERVING", got)
	}
}
