package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-trainer/internal/config"
)

// Server hosts the TrainerEngine service with health checks, reflection and
// Prometheus interceptors.
type Server struct {
	cfg        config.ServerConfig
	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
}

// NewServer constructs a gRPC server bound to the configured address. Calls
// are logged through logger when it is non-nil.
func NewServer(cfg config.ServerConfig, service TrainerEngineServer, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	unary := []grpc.UnaryServerInterceptor{grpc_prometheus.UnaryServerInterceptor}
	if logger != nil {
		unary = append(unary, loggingInterceptor(logger))
	}
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	RegisterTrainerEngineServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	s := &Server{
		cfg:        cfg,
		grpcServer: grpcServer,
		listener:   lis,
		health:     healthSrv,
	}
	s.SetServing(true)
	return s, nil
}

// SetServing flips the reported health of the server and the trainer service.
func (s *Server) SetServing(serving bool) {
	if s.health == nil {
		return
	}
	state := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		state = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", state)
	s.health.SetServingStatus(TrainerEngineServiceName, state)
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{
			slog.String("method", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc failed", append(attrs, slog.Any("error", err))...)
		} else {
			logger.Debug("rpc served", attrs...)
		}
		return resp, err
	}
}

// Start serves incoming gRPC requests until Shutdown is invoked.
func (s *Server) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown reports NOT_SERVING, then stops gracefully. Pending calls are
// cut off when ctx ends first.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
