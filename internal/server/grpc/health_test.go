package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dial(t *testing.T, h *Health) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = h.Serve(lis) }()
	t.Cleanup(func() { h.Stop(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func servingStatus(t *testing.T, c healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return resp.GetStatus()
}

func TestHealth_FollowsPing(t *testing.T) {
	t.Parallel()

	var down atomic.Bool
	h := NewHealth(func(context.Context) error {
		if down.Load() {
			return errors.New("db down")
		}
		return nil
	}, zaptest.NewLogger(t))
	c := dial(t, h)

	if got := servingStatus(t, c); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before first ping: %v", got)
	}

	if !h.Check(context.Background()) {
		t.Fatalf("ping should succeed")
	}
	if got := servingStatus(t, c); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("after ok ping: %v", got)
	}

	down.Store(true)
	if h.Check(context.Background()) {
		t.Fatalf("ping should fail")
	}
	if got := servingStatus(t, c); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after failed ping: %v", got)
	}
}

func TestHealth_WatchStopsOnCancel(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	h := NewHealth(func(context.Context) error { calls.Add(1); return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("watch did not ping")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("watch did not stop")
	}
}
