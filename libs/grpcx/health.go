package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server with tracing, request id and logging interceptors
// plus the standard health service registered.
func NewServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLogInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchReadiness mirrors the readiness checks into the health status of service
// until ctx is done.
func WatchReadiness(ctx context.Context, hs *health.Server, service string, every time.Duration, checks ...runtime.ReadyCheck) {
	if every <= 0 {
		every = 10 * time.Second
	}
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if len(runtime.RunChecks(ctx, checks)) > 0 {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(service, st)
		hs.SetServingStatus("", st)
	}
	update()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
