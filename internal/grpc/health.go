package grpc

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"groupchat-service/internal/observability"
)

// ServiceName is the health service name reported alongside the overall "" status.
const ServiceName = "groupchat.Realtime"

const probeTimeout = 2 * time.Second

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// HealthServer exposes the standard gRPC health service and probes the
// service's dependencies to drive its status.
type HealthServer struct {
	server *googlegrpc.Server
	health *health.Server
	checks map[string]Check
	logger *slog.Logger
}

func NewHealthServer(checks map[string]Check, logger *slog.Logger) *HealthServer {
	server := googlegrpc.NewServer(
		googlegrpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
		googlegrpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	return &HealthServer{
		server: server,
		health: hs,
		checks: checks,
		logger: logger,
	}
}

// Probe runs every check and updates the served status. It returns the
// per-dependency result, "ok" or the error text.
func (s *HealthServer) Probe(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(s.checks))
	healthy := true

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.checks[name](checkCtx)
		cancel()
		if err != nil {
			healthy = false
			results[name] = err.Error()
			s.logger.Warn("health check failed", "dependency", name, "error", err)
			continue
		}
		results[name] = "ok"
	}

	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return results, healthy
}

// Run probes immediately and then every period until ctx is cancelled.
func (s *HealthServer) Run(ctx context.Context, period time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks the service as not serving and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
