package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/mafiaserver/logger"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "mafia.GameServer"

// GRPCServer serves the standard grpc.health.v1 service so orchestrators can
// probe the game server.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewGRPCServer(addr string) (*GRPCServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &GRPCServer{server: gs, health: hs, listener: listener}, nil
}

func (s *GRPCServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *GRPCServer) Start() {
	logger.Log.Infof("gRPC health server listening on %s", s.Addr())
	if err := s.server.Serve(s.listener); err != nil {
		logger.Log.Errorf("gRPC server stopped: %v", err)
	}
}

// Stop marks the service NOT_SERVING and drains open calls.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
