// Package health serves the gRPC health protocol. The process reports SERVING
// only while the broadcast coordinator holds its change subscriptions.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/tepache/internal/game/facade"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "tepache.facade"

// StateSource reports the coordinator's subscription state.
type StateSource interface {
	State() facade.State
	OnStateChange(fn func(facade.State))
}

// Server is a gRPC server exposing grpc.health.v1. It implements server.Service.
type Server struct {
	addr         string
	grpcServer   *grpc.Server
	health       *health.Server
	logger       *zap.Logger
	listenerAddr chan string
}

// NewServer creates a Server on addr that tracks src.
//
// Precondition: src and logger must be non-nil.
// Postcondition: The reported status already matches src.State().
func NewServer(addr string, src StateSource, logger *zap.Logger) *Server {
	s := &Server{
		addr:         addr,
		grpcServer:   grpc.NewServer(),
		health:       health.NewServer(),
		logger:       logger,
		listenerAddr: make(chan string, 1),
	}
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.set(src.State())
	src.OnStateChange(s.set)
	return s
}

func (s *Server) set(state facade.State) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if state == facade.Subscribed {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Debug("health status", zap.String("status", status.String()))
}

// Start listens and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listenerAddr <- lis.Addr().String()
	s.logger.Info("health server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop reports NOT_SERVING to every watcher and drains the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Addr blocks until Start is listening and returns the bound address.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-s.listenerAddr:
		s.listenerAddr <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
