package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"chat-relay/internal/constants"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/security/audit"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// WSConnectionLimiter WebSocket 連接限制器
//
// 升級後的連線會一直佔用 handler goroutine，所以在 c.Next() 返回時釋放名額.
type WSConnectionLimiter struct {
	mu                sync.RWMutex
	clock             clockwork.Clock
	audit             *audit.AuditService
	connections       map[string]int       // IP -> 連接數
	lastConnect       map[string]time.Time // IP -> 最後連接時間
	maxPerIP          int
	minInterval       time.Duration
	cleanupInterval   time.Duration
	maxTotalConns     int
	currentTotalConns int
}

// NewWSConnectionLimiter 創建 WebSocket 連接限制器
func NewWSConnectionLimiter(maxPerIP int, minInterval time.Duration, maxTotal int, auditSvc *audit.AuditService, clock clockwork.Clock) *WSConnectionLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WSConnectionLimiter{
		clock:           clock,
		audit:           auditSvc,
		connections:     make(map[string]int),
		lastConnect:     make(map[string]time.Time),
		maxPerIP:        maxPerIP,
		minInterval:     minInterval,
		cleanupInterval: constants.WSConnectionCleanupInterval * time.Minute,
		maxTotalConns:   maxTotal,
	}
}

// Middleware WebSocket 連接限制中間件
func (l *WSConnectionLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !l.acquire(clientIP) {
			ctx := c.Request.Context()
			logger.Warning(ctx, "WebSocket 連接數已達上限",
				logger.WithAction("ws_limit"),
				logger.WithDetails(map[string]interface{}{"ip": clientIP}))
			if l.audit.IsEnabled() {
				l.audit.LogRateLimitExceeded(ctx, clientIP, c.Request.URL.Path)
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "WebSocket 連接數已達上限，請稍後再試",
				"success": false,
			})
			c.Abort()
			return
		}
		defer l.release(clientIP)

		c.Next()
	}
}

// Run 定期清理過期記錄，直到 ctx 結束
func (l *WSConnectionLimiter) Run(ctx context.Context) {
	ticker := l.clock.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.cleanup()
		}
	}
}

// acquire 檢查並登記一個新連接
func (l *WSConnectionLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotalConns > 0 && l.currentTotalConns >= l.maxTotalConns {
		return false
	}
	if l.maxPerIP > 0 && l.connections[ip] >= l.maxPerIP {
		return false
	}
	now := l.clock.Now()
	if lastTime, exists := l.lastConnect[ip]; exists && now.Sub(lastTime) < l.minInterval {
		return false
	}

	l.connections[ip]++
	l.currentTotalConns++
	l.lastConnect[ip] = now
	return true
}

// release 移除連接
func (l *WSConnectionLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count, exists := l.connections[ip]; exists {
		if count <= 1 {
			delete(l.connections, ip)
		} else {
			l.connections[ip]--
		}
		l.currentTotalConns--
	}
}

func (l *WSConnectionLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for ip, lastTime := range l.lastConnect {
		// 清理 10 分鐘無活動的記錄
		if now.Sub(lastTime) > 10*time.Minute {
			delete(l.lastConnect, ip)
			if l.connections[ip] == 0 {
				delete(l.connections, ip)
			}
		}
	}
}

// Stats 獲取統計信息
func (l *WSConnectionLimiter) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return map[string]interface{}{
		"total_connections": l.currentTotalConns,
		"unique_ips":        len(l.connections),
		"max_total":         l.maxTotalConns,
		"max_per_ip":        l.maxPerIP,
	}
}
