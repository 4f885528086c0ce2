package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"courtbook/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthCheckInterval = 10 * time.Second

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCServer serves the standard health service so orchestrators can probe
// the booking core.
type GRPCServer struct {
	cfg      *config.APIConfig
	store    Pinger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, store Pinger, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	unary := ChainUnaryInterceptors(
		LoggingUnaryInterceptor(logger),
		RateLimitUnaryInterceptor(newRateLimiter(cfg.RateLimit)),
	)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(unary))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	serverLogger := zerolog.Nop()
	if logger != nil {
		serverLogger = logger.With().Str("component", "grpc").Logger()
	}

	return &GRPCServer{
		cfg:      cfg,
		store:    store,
		server:   grpcServer,
		health:   healthServer,
		listener: lis,
		log:      serverLogger,
	}, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// CheckHealth pings the store and publishes the result for the overall
// service ("").
func (s *GRPCServer) CheckHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Store ping failed")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	return st
}

// WatchHealth refreshes the health status until ctx is done.
func (s *GRPCServer) WatchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		s.CheckHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
