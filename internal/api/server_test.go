package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"courtbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	return f.err
}

func TestGRPCHealth(t *testing.T) {
	logger := zerolog.Nop()
	pinger := &fakePinger{}
	cfg := &config.APIConfig{GRPC: config.APIGRPCConfig{Enabled: true, Port: 0}}

	srv, err := NewGRPCServer(cfg, pinger, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.CheckHealth(ctx))
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	pinger.err = errors.New("database is locked")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.CheckHealth(ctx))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestPeerHost(t *testing.T) {
	assert.Equal(t, clientKeyUnknown, peerHost(context.Background()))
}

func TestChainUnaryInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}
	chained := ChainUnaryInterceptors(mk("a"), mk("b"))
	_, err := chained(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
