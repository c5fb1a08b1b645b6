// Package server provides the gRPC server implementation and related
// utilities. It handles server lifecycle management, graceful shutdown,
// and signal handling for the settlement core service.
package server

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps a gRPC server exposing only the standard gRPC health
// service; settlement core has no external RPC surface of its own (spec.md
// §6's APIs are the internal Go interfaces other packages consume
// directly), so health is the only thing worth exposing over the wire for
// orchestration probes.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with the gRPC health service registered
// and marked SERVING.
func NewServer(logger *slog.Logger) *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     logger,
	}
}

// SetServingStatus updates the health service's status for service (""
// for the overall server status).
func (s *Server) SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus(service, status)
}

// Run starts the gRPC server on addr and blocks until it stops.
func (s *Server) Run(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("grpc server listening", "addr", addr)
	return s.grpcServer.Serve(lis)
}

// RunWithGracefulShutdown starts the gRPC server and performs a graceful
// shutdown on context cancellation or SIGINT/SIGTERM.
func (s *Server) RunWithGracefulShutdown(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.logger.Info("grpc server listening", "addr", addr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.grpcServer.Serve(lis)
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case <-gctx.Done():
		case <-sigCh:
		}
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	if err != nil && gctx.Err() != nil {
		return nil
	}
	return err
}
