package server

import (
	"context"
	"net/http"
	"time"

	"chat-relay/internal/account"
	"chat-relay/internal/constants"
	"chat-relay/internal/message"
	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/health"
	"chat-relay/internal/platform/middleware"
	"chat-relay/internal/relay"
	"chat-relay/internal/security/audit"
	"chat-relay/internal/storage/blob"
	"chat-relay/internal/storage/database"
	"chat-relay/internal/upload"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// 需要獨立速率限制的端點.
const (
	pathRegister      = "/register"
	pathLogin         = "/login"
	pathSearchUser    = "/search-user"
	pathUpdateProfile = "/update-profile"
	pathGetMessages   = "/get-messages"
	pathUpload        = "/upload"
	pathUploads       = "/uploads"
	pathHealth        = "/health"
	pathWS            = "/ws"
)

// Deps HTTP 路由需要的元件.
type Deps struct {
	Config *config.Config
	Repos  *database.Repositories
	Blobs  *blob.LocalStore
	Relay  *relay.Router
	Audit  *audit.AuditService
	Health *health.Handler
	Clock  clockwork.Clock
}

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止點擊劫持
		c.Header("X-Frame-Options", "DENY")

		// 防止 MIME 類型嗅探
		c.Header("X-Content-Type-Options", "nosniff")

		// 啟用 XSS 保護
		c.Header("X-XSS-Protection", "1; mode=block")

		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(self), camera=(self)")

		c.Next()
	}
}

// corsMiddleware 只允許配置中的來源，"*" 表示全部允許
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := false
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && (allowAll || origins[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400") // 預檢請求緩存 24 小時

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Router 設定路由，限流器的清理 goroutine 在 ctx 結束時停止
func Router(ctx context.Context, deps Deps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	// 請求 ID 最優先，後續日誌都會帶上 trace
	r.Use(middleware.RequestIDMiddleware())
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.RequestMetadataMiddleware())
	r.Use(middleware.AccessLog(pathHealth))

	maxMemory := int64(constants.DefaultMaxMultipartMemory)
	if cfg.Limits.Request.MaxMultipartMemory > 0 {
		maxMemory = cfg.Limits.Request.MaxMultipartMemory
	}
	r.MaxMultipartMemory = maxMemory

	if cfg.Limits.RateLimiting.Enabled {
		r.Use(newRateLimiter(ctx, cfg, deps).Middleware())
	}

	maxBody := int64(constants.DefaultMaxRequestBodySize)
	if cfg.Limits.Request.MaxBodySize > 0 {
		maxBody = cfg.Limits.Request.MaxBodySize
	}
	bodyLimit := middleware.RequestSizeLimiter(maxBody)

	healthHandler := deps.Health
	if healthHandler == nil {
		healthHandler = health.NewHealthHandler()
	}
	accountHandler := account.NewAccountHandler(deps.Repos.Users, deps.Blobs, deps.Audit)
	messageHandler := message.NewMessageHandler(deps.Repos.Messages)
	uploadHandler := upload.NewUploadHandler(deps.Blobs)

	r.GET(pathHealth, healthHandler.HealthCheck)

	r.POST(pathRegister, bodyLimit, accountHandler.Register)
	r.POST(pathLogin, bodyLimit, accountHandler.Login)
	r.GET(pathSearchUser, middleware.RequireHandleQuery("q"), accountHandler.SearchUser)
	r.POST(pathUpdateProfile, accountHandler.UpdateProfile)
	r.GET(pathGetMessages, messageHandler.GetMessages)
	r.POST(pathUpload, uploadHandler.Upload)
	r.Static(pathUploads, deps.Blobs.BasePath())

	registerStreamRoutes(ctx, r, cfg, deps)

	return r
}

func newRateLimiter(ctx context.Context, cfg *config.Config, deps Deps) *middleware.PerEndpointRateLimiter {
	rl := cfg.Limits.RateLimiting

	defaultLimit := constants.DefaultRateLimitPerMinute
	if rl.DefaultPerMinute > 0 {
		defaultLimit = rl.DefaultPerMinute
	}
	accountLimit := constants.DefaultAccountRateLimit
	if rl.AccountPerMin > 0 {
		accountLimit = rl.AccountPerMin
	}
	uploadLimit := constants.DefaultUploadRateLimit
	if rl.UploadPerMin > 0 {
		uploadLimit = rl.UploadPerMin
	}

	limiter := middleware.NewPerEndpointRateLimiter(defaultLimit, time.Minute, deps.Audit, deps.Clock)
	limiter.SetLimit(pathRegister, accountLimit, time.Minute)
	limiter.SetLimit(pathLogin, accountLimit, time.Minute)
	limiter.SetLimit(pathUpdateProfile, accountLimit, time.Minute)
	limiter.SetLimit(pathUpload, uploadLimit, time.Minute)
	if rl.CleanupInterval > 0 {
		limiter.SetCleanupInterval(time.Duration(rl.CleanupInterval) * time.Minute)
	}

	go limiter.Run(ctx)
	return limiter
}
