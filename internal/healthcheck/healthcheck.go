// Package healthcheck serves the standard gRPC health service so supervisors
// can tell whether the console has a working sonar link.
package healthcheck

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/sidescan/internal/monitoring"
)

// Service is the health service name reported for the sonar link. The empty
// name reports the process itself.
const Service = "sidescan.sonar"

// Server wraps a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	health *health.Server
	server *grpc.Server

	running atomic.Bool
	wg      sync.WaitGroup
}

// New returns a Server whose services start out NOT_SERVING.
func New() *Server {
	s := &Server{
		health: health.NewServer(),
		server: grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetSonar reports whether the sonar link is usable.
func (s *Server) SetSonar(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(Service, status)
}

// Listen binds addr and serves in the background.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.Serve(lis)
	return nil
}

// Serve serves on lis in the background until Stop.
func (s *Server) Serve(lis net.Listener) {
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Diagf("[health] gRPC health listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Opsf("[health] gRPC server error: %v", err)
		}
	}()
}

// Stop marks every service NOT_SERVING and stops the server.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.health.Shutdown()
	s.server.GracefulStop()
	s.wg.Wait()
	monitoring.Diagf("[health] gRPC server stopped")
}
