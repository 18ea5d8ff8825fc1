// Package grpcserver exposes the standard gRPC health service for orchestrators.
// Serving status follows a periodic database ping.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "course-stream"

// Pinger checks a dependency.
type Pinger func(ctx context.Context) error

// Health wraps a grpc.Server carrying only the health service.
type Health struct {
	srv  *grpc.Server
	hs   *health.Server
	ping Pinger
	log  *zap.Logger
}

// NewHealth constructs a health server. Status starts NOT_SERVING until the first ping succeeds.
// Extra options (e.g. grpc.Creds) are appended to the interceptor chain.
func NewHealth(ping Pinger, log *zap.Logger, opts ...grpc.ServerOption) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	}, opts...)
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	h := &Health{srv: srv, hs: hs, ping: ping, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Check pings once and updates the serving status.
func (h *Health) Check(ctx context.Context) bool {
	if h.ping == nil {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.ping(ctx); err != nil {
		h.log.Warn("dependency ping failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch runs Check every interval until ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration) {
	h.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

// EnableReflection registers server reflection (dev only). Call before Serve.
func (h *Health) EnableReflection() {
	reflection.Register(h.srv)
}

// Serve accepts connections on lis until Stop.
func (h *Health) Serve(lis net.Listener) error {
	return h.srv.Serve(lis)
}

// Stop marks the service as shutting down and stops gracefully,
// forcing the stop once ctx is done.
func (h *Health) Stop(ctx context.Context) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
	}
}
