// Package clients provides gRPC client wrappers.
package clients

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/sufyanAbbasi/efflux/internal/address"
)

const healthDeadline = 2 * time.Second

// HealthClient probes a running monitor's health service.
type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
	logger *zap.Logger
	target string

	normalizer *address.Normalizer
}

// HealthOption customizes a HealthClient.
type HealthOption func(*HealthClient)

// WithPeerNormalizer canonicalizes peer addresses before they are sent as
// service names, so "localhost:8001" matches "ws://localhost:8001".
func WithPeerNormalizer(n address.Normalizer) HealthOption {
	return func(c *HealthClient) { c.normalizer = &n }
}

// NewHealthClient creates a client for target. No connection is made until
// the first call.
func NewHealthClient(target string, logger *zap.Logger, opts ...HealthOption) (*HealthClient, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 300 * time.Second}),
	)
	if err != nil {
		return nil, err
	}
	c := &HealthClient{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
		logger: logger,
		target: target,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close shuts down the client connection.
func (c *HealthClient) Close() error {
	return c.conn.Close()
}

// Check returns the serving status of service; "" is the root peer.
func (c *HealthClient) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if service != "" && c.normalizer != nil {
		service = c.normalizer.Canonical(service)
	}
	ctx, cancel := context.WithTimeout(ctx, healthDeadline)
	defer cancel()

	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		c.logger.Debug("Health check failed", zap.String("target", c.target), zap.String("service", service), zap.Error(err))
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Serving reports whether service is SERVING.
func (c *HealthClient) Serving(ctx context.Context, service string) bool {
	status, err := c.Check(ctx, service)
	return err == nil && status == healthpb.HealthCheckResponse_SERVING
}
