package transport

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"cdcreader/internal/pipeline"
)

// ServicePrefix names the per-task health service, e.g. "cdcreader.task/7".
const ServicePrefix = "cdcreader.task/"

type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	health *health.Server
}

func StartServer(port int) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return NewServer(lis), nil
}

// NewServer serves the standard health service on lis. The overall
// status ("") starts SERVING.
func NewServer(lis net.Listener) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		lis:    lis,
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// Track mirrors the status of r into its task service.
func (s *Server) Track(r *pipeline.Runner) {
	s.health.SetServingStatus(ServicePrefix+r.TaskID(), healthpb.HealthCheckResponse_NOT_SERVING)
	r.SubscribeStatus(func(taskID string, st pipeline.Status, _ error) {
		s.health.SetServingStatus(ServicePrefix+taskID, servingStatus(st))
	})
}

func servingStatus(st pipeline.Status) healthpb.HealthCheckResponse_ServingStatus {
	if st == pipeline.StatusRunning {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
