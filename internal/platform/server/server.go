package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"chat-relay/internal/constants"
	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 30 * time.Second

// Server HTTP 伺服器.
type Server struct {
	http *http.Server
	tls  *tls.Config
}

// New 建立 HTTP 伺服器.
func New(cfg *config.Config, handler *gin.Engine) (*Server, error) {
	tlsConfig, err := LoadTLSConfig(cfg.Security.TLS)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Server.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}

	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: config.Duration(timeout),
			// WebSocket 需要長連接，讀寫超時交給連線自己的 deadline
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
			TLSConfig:    tlsConfig,
		},
		tls: tlsConfig,
	}, nil
}

// Start 開始監聽，直到 Shutdown 才返回 nil.
func (s *Server) Start() error {
	ctx := context.Background()
	logger.Infof(ctx, "伺服器正在監聽: %s", s.http.Addr)

	var err error
	if s.tls != nil {
		err = s.http.ListenAndServeTLS("", "")
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 優雅關閉.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		logger.Errorf(ctx, "伺服器關閉失敗: %v", err)
		return err
	}

	logger.Info(ctx, "伺服器已優雅關閉")
	return nil
}
