package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/service/updater"
)

// ServiceName is the health service name reporting update outcomes.
const ServiceName = "ota"

// Server reports daemon health over gRPC.
type Server struct {
	// health is the grpc-go health implementation holding statuses.
	health *grpchealth.Server
}

// NewServer creates a server reporting SERVING until told otherwise.
func NewServer() *Server {
	s := &Server{health: grpchealth.NewServer()}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// Update sets the status of the "ota" service from the last run report.
func (s *Server) Update(report *updater.Report) {
	if report == nil {
		return
	}

	status := healthpb.HealthCheckResponse_SERVING
	if !report.Succeeded() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus(ServiceName, status)
}

// Register adds the health service to a gRPC server.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Serve listens on address and blocks until ctx is canceled or the server stops.
func (s *Server) Serve(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.serve(ctx, lis)
}

func (s *Server) serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	s.Register(grpcServer)

	logger.InfoKV(ctx, "Health service listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health service stopped")

	return nil
}
