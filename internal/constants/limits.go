package constants

// HTTP 請求相關常數
const (
	// 默認值（可被配置覆蓋）
	DefaultMaxRequestBodySize = 10 << 20 // 10MB
	DefaultMaxMultipartMemory = 10 << 20 // 10MB
	DefaultRequestTimeout     = 30       // 秒
)

// Handle 相關常數
const (
	MaxHandleLength   = 100
	MaxPasswordLength = 72 // bcrypt 上限
	MaxBioLength      = 500
	// HandleForbiddenChars 會被 Mongo 查詢或 shell 解讀的字元
	HandleForbiddenChars = "\x00${}[]"
)

// 訊息相關常數
const (
	DefaultMaxMessageLength = 10000
)

// Rate Limiting 默認值
const (
	DefaultRateLimitPerMinute   = 100
	DefaultAccountRateLimit     = 10
	DefaultUploadRateLimit      = 20
	RateLimitCleanupIntervalMin = 10 // 分鐘
)

// WebSocket 連接相關常數
const (
	DefaultWSMaxConnectionsPerIP = 10
	DefaultWSMaxTotalConnections = 5000
	WSConnectionCleanupInterval  = 10 // 分鐘
)
