package grpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/pkg/logger"
)

// Server is the gRPC listener with the health service registered.
type Server struct {
	server *grpc.Server
	health *health.Server
	addr   string
	log    logger.Logger
}

// NewServer builds the gRPC server with the interceptor chain installed.
// Additional services can be registered through Registrar before Serve.
func NewServer(cfg *config.Config, chain *InterceptorChain, log logger.Logger) *Server {
	srv := grpc.NewServer(chain.ChainUnaryInterceptors())
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	return &Server{
		server: srv,
		health: hs,
		addr:   fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort),
		log:    log.WithComponent("grpc"),
	}
}

// Registrar exposes the underlying server for service registration.
func (s *Server) Registrar() grpc.ServiceRegistrar {
	return s.server
}

// SetServing flips the overall health status.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

// Start listens on the configured port and blocks until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "Starting gRPC server", logger.String("address", lis.Addr().String()))
	s.SetServing(true)
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop drains in-flight calls, forcing close when ctx expires first.
func (s *Server) Stop(ctx context.Context) {
	s.log.Info(ctx, "Stopping gRPC server")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
		<-done
	}
}
