package server

import (
	"context"
	"time"

	"chat-relay/internal/constants"
	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/middleware"
	"chat-relay/internal/realtime"

	"github.com/gin-gonic/gin"
)

// registerStreamRoutes 註冊 WebSocket 端點，套用額外的連接數限制
func registerStreamRoutes(ctx context.Context, r *gin.Engine, cfg *config.Config, deps Deps) {
	ws := cfg.Limits.WebSocket

	maxPerIP := constants.DefaultWSMaxConnectionsPerIP
	if ws.MaxConnectionsPerIP > 0 {
		maxPerIP = ws.MaxConnectionsPerIP
	}
	maxTotal := constants.DefaultWSMaxTotalConnections
	if ws.MaxTotalConnections > 0 {
		maxTotal = ws.MaxTotalConnections
	}
	minInterval := time.Duration(ws.MinConnectionIntervalMs) * time.Millisecond

	limiter := middleware.NewWSConnectionLimiter(maxPerIP, minInterval, maxTotal, deps.Audit, deps.Clock)
	go limiter.Run(ctx)

	handler := realtime.NewHandler(deps.Relay, realtime.OptionsFromConfig(cfg.Realtime), cfg.Server.AllowedOrigins)
	r.GET(pathWS, limiter.Middleware(), handler.ServeWS)
}
