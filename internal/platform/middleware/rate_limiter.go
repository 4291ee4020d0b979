package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"chat-relay/internal/constants"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/security/audit"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// RateLimiter 固定窗口速率限制器
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.RWMutex
	clock    clockwork.Clock
	rate     int           // 每個時間窗口允許的請求數
	window   time.Duration // 時間窗口
}

// Visitor 訪問者信息
type Visitor struct {
	lastSeen  time.Time
	requests  int
	resetTime time.Time
}

// NewRateLimiter 創建新的速率限制器
// rate: 每個時間窗口允許的請求數
// window: 時間窗口（例如：time.Minute）
func NewRateLimiter(rate int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		clock:    clock,
		rate:     rate,
		window:   window,
	}
}

// Allow 檢查 key 是否還有配額
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	visitor, exists := rl.visitors[key]

	if !exists || now.After(visitor.resetTime) {
		rl.visitors[key] = &Visitor{
			lastSeen:  now,
			requests:  1,
			resetTime: now.Add(rl.window),
		}
		return true
	}

	visitor.lastSeen = now
	if visitor.requests >= rl.rate {
		return false
	}
	visitor.requests++
	return true
}

// cleanup 清理超過 10 分鐘沒有活動的訪問者
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for ip, visitor := range rl.visitors {
		if now.Sub(visitor.lastSeen) > 10*time.Minute {
			delete(rl.visitors, ip)
		}
	}
}

// PerEndpointRateLimiter 為不同端點設置不同的速率限制
type PerEndpointRateLimiter struct {
	limiters map[string]*RateLimiter
	default_ *RateLimiter
	clock    clockwork.Clock
	audit    *audit.AuditService
	interval time.Duration
}

// NewPerEndpointRateLimiter 創建端點級速率限制器
func NewPerEndpointRateLimiter(defaultRate int, defaultWindow time.Duration, auditSvc *audit.AuditService, clock clockwork.Clock) *PerEndpointRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PerEndpointRateLimiter{
		limiters: make(map[string]*RateLimiter),
		default_: NewRateLimiter(defaultRate, defaultWindow, clock),
		clock:    clock,
		audit:    auditSvc,
		interval: constants.RateLimitCleanupIntervalMin * time.Minute,
	}
}

// SetLimit 為特定端點設置限制，需在 Middleware 使用前呼叫
func (p *PerEndpointRateLimiter) SetLimit(path string, rate int, window time.Duration) {
	p.limiters[path] = NewRateLimiter(rate, window, p.clock)
}

// SetCleanupInterval 設定清理週期
func (p *PerEndpointRateLimiter) SetCleanupInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

// Middleware 返回 Gin 中間件
func (p *PerEndpointRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		limiter := p.limiterFor(path)

		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			ctx := c.Request.Context()
			logger.Warning(ctx, "請求過於頻繁",
				logger.WithAction("rate_limit"),
				logger.WithDetails(map[string]interface{}{"ip": ip, "path": path}))
			p.audit.LogRateLimitExceeded(ctx, ip, path)

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "請求過於頻繁，請稍後再試",
				"success": false,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Run 定期清理過期訪問者，直到 ctx 結束
func (p *PerEndpointRateLimiter) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.default_.cleanup()
			for _, l := range p.limiters {
				l.cleanup()
			}
		}
	}
}

// limiterFor 依最長路徑前綴挑選限制器，前綴必須在路徑段邊界結束
func (p *PerEndpointRateLimiter) limiterFor(path string) *RateLimiter {
	var (
		best    *RateLimiter
		bestLen int
	)
	for prefix, l := range p.limiters {
		if matchesPrefix(path, prefix) && len(prefix) > bestLen {
			best, bestLen = l, len(prefix)
		}
	}
	if best == nil {
		return p.default_
	}
	return best
}

func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/' || strings.HasSuffix(prefix, "/")
}
