// Package health serves the standard gRPC health protocol, reporting each
// upstream as NOT_SERVING while its circuit breaker is open.
package health

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/voicerelay/internal/resilience"
	"github.com/GriffinCanCode/voicerelay/internal/syncx"
	"github.com/GriffinCanCode/voicerelay/internal/trace"
)

// Overall is the service name for the relay as a whole.
const Overall = ""

// Server publishes breaker state over gRPC health checks.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	states *syncx.Map[string, resilience.State]
}

// New creates a health server tracking services, all initially SERVING.
func New(services []string) *Server {
	s := &Server{
		grpc:   grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor())),
		health: health.NewServer(),
		states: syncx.NewMap[string, resilience.State](),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)

	for _, name := range services {
		s.states.Store(name, resilience.Closed)
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	s.health.SetServingStatus(Overall, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Hook returns a breaker hook that keeps health status in step with breaker state.
func (s *Server) Hook() resilience.Hook {
	return func(name string, _, to resilience.State) {
		s.states.Store(name, to)
		s.health.SetServingStatus(name, servingStatus(to))
		s.health.SetServingStatus(Overall, s.overall())
	}
}

// Check reports the status of service ("" for the relay as a whole).
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Serve accepts gRPC connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) overall() healthpb.HealthCheckResponse_ServingStatus {
	for _, st := range s.states.Snapshot() {
		if st == resilience.Open {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthpb.HealthCheckResponse_SERVING
}

func servingStatus(st resilience.State) healthpb.HealthCheckResponse_ServingStatus {
	if st == resilience.Open {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
