// Package servers exposes monitor state over gRPC.
package servers

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/sufyanAbbasi/efflux/internal/conn"
)

// HealthServer republishes each peer's status channel as a standard gRPC
// health service named after the peer's address. The empty service name
// tracks the root peer.
type HealthServer struct {
	health *health.Server
	logger *zap.Logger

	mu   sync.RWMutex
	root string
}

// NewHealthServer creates a HealthServer for root. The root starts NOT_SERVING
// until its status channel opens.
func NewHealthServer(root string, logger *zap.Logger) *HealthServer {
	s := &HealthServer{
		health: health.NewServer(),
		logger: logger,
		root:   root,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if root != "" {
		s.health.SetServingStatus(root, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// SetRoot changes which peer the empty service reflects.
func (s *HealthServer) SetRoot(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
}

// Observe records a status channel state change; it matches monitor.StatusObserver.
func (s *HealthServer) Observe(peer string, state conn.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == conn.Open {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(peer, status)

	s.mu.RLock()
	isRoot := peer == s.root
	s.mu.RUnlock()
	if isRoot {
		s.health.SetServingStatus("", status)
	}
	s.logger.Debug("Peer health", zap.String("peer", peer), zap.String("status", status.String()))
}

// Serve starts the gRPC listener.
func (s *HealthServer) Serve(addr string) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return s.ServeListener(lis), nil
}

// ServeListener serves on an existing listener.
func (s *HealthServer) ServeListener(lis net.Listener) *grpc.Server {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{Time: 300 * time.Second}),
	)
	healthpb.RegisterHealthServer(srv, s.health)
	go func() {
		if err := srv.Serve(lis); err != nil {
			s.logger.Error("Health gRPC server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("Health gRPC listening", zap.String("addr", lis.Addr().String()))
	return srv
}

// Shutdown marks every service NOT_SERVING so watchers see the monitor leave.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
}
