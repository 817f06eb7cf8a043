package health

import (
	"context"

	"github.com/gogo/status"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer answers grpc.health.v1 from the same dependency checks as /readyz.
type GRPCServer struct {
	grpchealth.UnimplementedHealthServer
	checker HealthService
}

func NewGRPCServer(checker HealthService) *GRPCServer {
	return &GRPCServer{checker: checker}
}

func (s *GRPCServer) Check(ctx context.Context, _ *grpchealth.HealthCheckRequest) (*grpchealth.HealthCheckResponse, error) {
	if res := s.checker.Check(ctx); res.Status != StatusHealthy {
		return &grpchealth.HealthCheckResponse{Status: grpchealth.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &grpchealth.HealthCheckResponse{Status: grpchealth.HealthCheckResponse_SERVING}, nil
}

func (s *GRPCServer) Watch(_ *grpchealth.HealthCheckRequest, _ grpchealth.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watch is not supported")
}
