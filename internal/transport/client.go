package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Dial connects to a worker's health endpoint.
func Dial(addr string, opts ...grpc.DialOption) (healthpb.HealthClient, func() error, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return healthpb.NewHealthClient(cc), cc.Close, nil
}

// TaskStatus asks addr for the health of taskID; an empty taskID
// queries the worker as a whole.
func TaskStatus(ctx context.Context, addr, taskID string, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	cli, closeFn, err := Dial(addr, opts...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer closeFn()

	service := ""
	if taskID != "" {
		service = ServicePrefix + taskID
	}
	resp, err := cli.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health %s: %w", addr, err)
	}
	return resp.GetStatus(), nil
}
