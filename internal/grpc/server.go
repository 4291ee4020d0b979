package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"chat-relay/internal/platform/logger"
	"chat-relay/internal/platform/middleware"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName gRPC 健康檢查使用的服務名稱.
const ServiceName = "chat-relay"

const defaultCheckInterval = 15 * time.Second

// CheckFunc 回傳 nil 表示服務可用.
type CheckFunc func(ctx context.Context) error

// Server gRPC 健康檢查服務器
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	check      CheckFunc
	clock      clockwork.Clock
	interval   time.Duration

	mu      sync.Mutex
	serving healthpb.HealthCheckResponse_ServingStatus
}

// Option 服務器選項.
type Option func(*Server)

// WithClock 設定時鐘.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithCheckInterval 設定依賴檢查間隔.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithServerOptions 附加 grpc.ServerOption（例如 TLS 憑證）.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(s *Server) {
		s.grpcServer = grpc.NewServer(append(defaultServerOptions(), opts...)...)
	}
}

// NewServer 創建新的 gRPC 服務器，check 為 nil 時永遠回報 SERVING
func NewServer(check CheckFunc, opts ...Option) *Server {
	s := &Server{
		health:   health.NewServer(),
		check:    check,
		clock:    clockwork.NewRealClock(),
		interval: defaultCheckInterval,
		serving:  healthpb.HealthCheckResponse_UNKNOWN,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.grpcServer == nil {
		s.grpcServer = grpc.NewServer(defaultServerOptions()...)
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.Refresh(context.Background())
	return s
}

func defaultServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(middleware.GRPCUnaryInterceptor()),
		grpc.ChainStreamInterceptor(middleware.GRPCStreamInterceptor()),
	}
}

// Start 在 addr 上監聽並阻塞直到服務器停止
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	logger.Infof(context.Background(), "gRPC 健康檢查服務啟動在 %s", addr)
	return s.Serve(lis)
}

// Serve 在既有的 listener 上服務.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Watch 定期檢查依賴並更新健康狀態，直到 ctx 結束
func (s *Server) Watch(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Refresh(ctx)
		}
	}
}

// Refresh 立即檢查一次依賴並更新狀態.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		if err := s.check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warning(ctx, "依賴檢查失敗",
				logger.WithAction("grpc_health"),
				logger.WithError(err))
		}
	}

	s.mu.Lock()
	changed := s.serving != status
	s.serving = status
	s.mu.Unlock()

	if changed {
		s.health.SetServingStatus("", status)
		s.health.SetServingStatus(ServiceName, status)
		logger.Info(ctx, "gRPC 健康狀態變更",
			logger.WithAction("grpc_health"),
			logger.WithDetails(map[string]interface{}{"status": status.String()}))
	}
	return status
}

// Stop 將狀態設為 NOT_SERVING 並優雅停止
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
