package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/reaper"
	"chat-relay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const (
	// 健康狀態常數.
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusWarning   = "warning"
	statusDegraded  = "degraded"

	// 記憶體相關常數.
	memoryMB        = 1024 * 1024
	memoryThreshold = 1024 // 1GB

	// 超時常數.
	dbTimeout = 5 * time.Second
)

// PingFunc 檢查存儲是否可用.
type PingFunc func(ctx context.Context) error

// RegistryStats 提供連線統計.
type RegistryStats interface {
	Stats() relay.RegistryStats
}

// ReaperStats 提供清理任務統計.
type ReaperStats interface {
	Stats() reaper.Stats
	Interval() time.Duration
}

// Handler 健康檢查處理器.
type Handler struct {
	driver   string
	database string
	ping     PingFunc
	registry RegistryStats
	reaper   ReaperStats
	clock    clockwork.Clock
	started  time.Time
}

// Option 健康檢查選項.
type Option func(*Handler)

// WithDatabase 設定資料庫驅動名稱與 ping 函數，memory 驅動不需要 ping.
func WithDatabase(driver, database string, ping PingFunc) Option {
	return func(h *Handler) {
		h.driver = driver
		h.database = database
		h.ping = ping
	}
}

// WithRegistry 設定連線統計來源.
func WithRegistry(r RegistryStats) Option {
	return func(h *Handler) { h.registry = r }
}

// WithReaper 設定清理任務統計來源.
func WithReaper(r ReaperStats) Option {
	return func(h *Handler) { h.reaper = r }
}

// WithClock 設定時鐘.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Handler) { h.clock = clock }
}

// NewHealthHandler 創建新的健康檢查處理器.
func NewHealthHandler(opts ...Option) *Handler {
	h := &Handler{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.clock.Now()
	return h
}

// CheckDatabase 檢查資料庫連線，gRPC 健康服務也使用這個結果.
func (h *Handler) CheckDatabase(ctx context.Context) error {
	if h.ping == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return h.ping(ctx)
}

// HealthCheck 健康檢查端點.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	overall := statusHealthy

	// 檢查資料庫連線.
	dbStatus := statusHealthy
	dbError := ""
	if err := h.CheckDatabase(ctx); err != nil {
		dbStatus = statusUnhealthy
		dbError = err.Error()
		overall = statusDegraded
		logger.Errorf(ctx, "健康檢查 - 資料庫連線失敗: %v", err)
	}

	response := gin.H{
		"status":    overall,
		"timestamp": h.clock.Now().Unix(),
		"app":       appInfo(),
		"database": gin.H{
			"status": dbStatus,
			"error":  dbError,
			"details": gin.H{
				"driver":   h.driver,
				"database": h.database,
			},
		},
		"system": gin.H{},
	}

	if h.registry != nil {
		response["realtime"] = gin.H{
			"status":  statusHealthy,
			"details": h.registry.Stats(),
		}
	}

	if h.reaper != nil {
		reaperStatus := h.checkReaper()
		response["reaper"] = reaperStatus
		if reaperStatus.Status != statusHealthy && overall == statusHealthy {
			overall = statusDegraded
			response["status"] = overall
		}
	}

	systemStatus := h.checkSystemResources()
	response["system"] = gin.H{
		"status":  systemStatus.Status,
		"details": systemStatus.Details,
		"uptime":  h.clock.Since(h.started).String(),
	}

	// 即使依賴不健康也回傳 200，狀態放在回應中
	c.JSON(http.StatusOK, response)
}

// SystemStatus 系統狀態.
type SystemStatus struct {
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details"`
}

// checkReaper 最近一次清理失敗或太久沒有執行時回報 warning.
func (h *Handler) checkReaper() SystemStatus {
	stats := h.reaper.Stats()
	details := map[string]interface{}{
		"runs":          stats.Runs,
		"running":       stats.Running,
		"last_removed":  stats.LastRemoved,
		"total_removed": stats.TotalRemoved,
		"interval":      h.reaper.Interval().String(),
	}
	if !stats.LastRun.IsZero() {
		details["last_run"] = stats.LastRun.UTC().Format(time.RFC3339)
	}

	status := statusHealthy
	if stats.LastError != "" {
		status = statusWarning
		details["last_error"] = stats.LastError
	}
	if stats.Running && !stats.LastRun.IsZero() && h.clock.Since(stats.LastRun) > 3*h.reaper.Interval() {
		status = statusWarning
		details["stale"] = true
	}

	return SystemStatus{Status: status, Details: details}
}

// checkSystemResources 檢查系統資源.
func (h *Handler) checkSystemResources() SystemStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc":       fmt.Sprintf("%.2f MB", float64(m.Alloc)/memoryMB),
			"total_alloc": fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/memoryMB),
			"sys":         fmt.Sprintf("%.2f MB", float64(m.Sys)/memoryMB),
			"num_gc":      m.NumGC,
		},
		"cpu": gin.H{
			"num_cpu": runtime.NumCPU(),
		},
	}

	// 記憶體使用超過 1GB 視為警告
	memoryUsage := m.Sys / memoryMB
	status := statusHealthy
	if memoryUsage > memoryThreshold {
		status = statusWarning
		details["memory_warning"] = "Memory usage is high"
	}

	return SystemStatus{
		Status:  status,
		Details: details,
	}
}

func appInfo() gin.H {
	// 從環境變數讀取版本，沒有則用配置
	version := os.Getenv("APP_VERSION")
	info := gin.H{}
	if cfg := config.Get(); cfg != nil {
		info["name"] = cfg.App.Name
		info["debug"] = cfg.App.Debug
		if version == "" {
			version = cfg.App.Version
		}
	}
	if version == "" {
		version = "NO_VERSION_SET"
	}
	info["version"] = version
	return info
}
