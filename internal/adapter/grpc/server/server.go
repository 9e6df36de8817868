// Package server hosts the ops-plane gRPC endpoint: the standard health
// service plus reflection, for orchestrators and tooling (grpcurl) that
// probe gRPC health instead of HTTP.
package server

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/seu-repo/ocpp-swarm/internal/adapter/grpc/interceptors"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// NewGRPCServer assembles the server. A nil auth service leaves the
// endpoint unauthenticated; health and reflection are always open.
func NewGRPCServer(auth ports.AuthService, log *zap.Logger) *GRPCServer {
	chain := []grpc.UnaryServerInterceptor{
		interceptors.UnaryLoggingInterceptor(log),
		interceptors.UnaryMetricsInterceptor(),
	}
	if auth != nil {
		chain = append(chain, interceptors.UnaryAuthInterceptor(auth))
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(chain...))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Enable reflection for debugging (e.g. grpcurl)
	reflection.Register(s)

	return &GRPCServer{
		server: s,
		health: hs,
		log:    log,
	}
}

// SetServing flips the reported health for the named service; an empty
// name sets the overall server status.
func (s *GRPCServer) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks every service not-serving and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
