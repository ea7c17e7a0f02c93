package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/wfunc/soccerserver/logger"
)

// EngineServiceName is the service name health checks ask about.
const EngineServiceName = "soccer.Engine"

// HealthServer serves the standard gRPC health protocol for load balancers and orchestrators.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewHealthServer() *HealthServer {
	s := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetServing(false)
	return s
}

// SetServing flips both the engine service and the overall ("") status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(EngineServiceName, status)
}

// Serve blocks until Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	logger.Log.Infof("gRPC health server listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop reports NOT_SERVING to watchers and then stops the server.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
