package server

import (
	"net"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

// HealthService is the gRPC health service name reporting whether a valid
// topology is loaded.
const HealthService = "alto.Topology"

// GRPCServer serves the standard gRPC health service.
type GRPCServer struct {
	listenAddress string
	server        *grpc.Server
	health        *health.Server
	logger        logging.Logger
}

func NewGRPCServer(listenAddress string, logger logging.Logger) *GRPCServer {
	s := &GRPCServer{
		listenAddress: listenAddress,
		server:        grpc.NewServer(),
		health:        health.NewServer(),
		logger:        logger.With("component", "grpc"),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)
	return s
}

func (s *GRPCServer) Name() string { return "grpc" }

// SetServing flips the topology health status.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
	s.health.SetServingStatus("", status)
}

func (s *GRPCServer) Start() error {
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	s.logger.Infof("gRPC server listening at %v", listener.Addr())
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "failed to serve gRPC server")
	}
	return nil
}

func (s *GRPCServer) Stop() error {
	s.health.Shutdown()
	s.server.GracefulStop()
	return nil
}
