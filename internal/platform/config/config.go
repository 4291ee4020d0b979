package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 資料庫驅動.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config 應用程式配置結構.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// AppConfig 應用程式基本配置.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"`
}

// ServerConfig 伺服器配置.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           string   `mapstructure:"port"`
	Timeout        int      `mapstructure:"timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// GRPCConfig gRPC 健康檢查服務配置.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
}

// DatabaseConfig 資料庫配置.
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // mongo 或 memory
	Mongo  MongoConfig `mapstructure:"mongo"`
}

// MongoConfig MongoDB 配置.
type MongoConfig struct {
	URL                    string `mapstructure:"url"`
	Database               string `mapstructure:"database"`
	Username               string `mapstructure:"username"`
	Password               string `mapstructure:"password"`
	MaxPoolSize            uint64 `mapstructure:"max_pool_size"`
	MinPoolSize            uint64 `mapstructure:"min_pool_size"`
	MaxConnIdleTime        int    `mapstructure:"max_conn_idle_time"`
	ConnectTimeout         int    `mapstructure:"connect_timeout"`
	ServerSelectionTimeout int    `mapstructure:"server_selection_timeout"`
	TLSEnabled             bool   `mapstructure:"tls_enabled"`
	TLSCAFile              string `mapstructure:"tls_ca_file"`
	TLSCertFile            string `mapstructure:"tls_cert_file"`
	TLSKeyFile             string `mapstructure:"tls_key_file"`
	TLSInsecureSkipVerify  bool   `mapstructure:"tls_insecure_skip_verify"`
}

// LogConfig 日誌配置.
type LogConfig struct {
	RotationTimeHours int `mapstructure:"rotation_time_hours"` // 日誌輪轉時間 (小時).
	MaxAgeDays        int `mapstructure:"max_age_days"`        // 日誌保留天數.
	MaxSizeMB         int `mapstructure:"max_size_mb"`         // 單個日誌檔案最大大小 (MB).
}

// SecurityConfig 安全配置.
type SecurityConfig struct {
	TLS   TLSConfig   `mapstructure:"tls"`
	Audit AuditConfig `mapstructure:"audit"`
}

// TLSConfig TLS 配置.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// AuditConfig 審計配置.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// RealtimeConfig WebSocket 連線與事件路由配置.
type RealtimeConfig struct {
	WriteWaitSeconds    int   `mapstructure:"write_wait_seconds"`
	PongWaitSeconds     int   `mapstructure:"pong_wait_seconds"`
	PingIntervalSeconds int   `mapstructure:"ping_interval_seconds"`
	MaxMessageSize      int64 `mapstructure:"max_message_size"`
	SendBuffer          int   `mapstructure:"send_buffer"`
	StoreTimeoutSeconds int   `mapstructure:"store_timeout_seconds"`
}

// ReaperConfig 過期訊息清理配置.
type ReaperConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
}

// UploadConfig 檔案上傳配置.
type UploadConfig struct {
	Dir       string `mapstructure:"dir"`
	URLPrefix string `mapstructure:"url_prefix"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// LimitsConfig 限制配置.
type LimitsConfig struct {
	Request      RequestLimitsConfig   `mapstructure:"request"`
	RateLimiting RateLimitingConfig    `mapstructure:"rate_limiting"`
	WebSocket    WebSocketLimitsConfig `mapstructure:"websocket"`
	Message      MessageLimitsConfig   `mapstructure:"message"`
}

// RequestLimitsConfig 請求限制配置.
type RequestLimitsConfig struct {
	MaxBodySize        int64 `mapstructure:"max_body_size"`
	MaxMultipartMemory int64 `mapstructure:"max_multipart_memory"`
}

// RateLimitingConfig Rate Limiting 配置.
type RateLimitingConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	DefaultPerMinute int  `mapstructure:"default_per_minute"`
	AccountPerMin    int  `mapstructure:"account_per_minute"`
	UploadPerMin     int  `mapstructure:"upload_per_minute"`
	CleanupInterval  int  `mapstructure:"cleanup_interval_minutes"`
}

// WebSocketLimitsConfig WebSocket 連線限制配置.
type WebSocketLimitsConfig struct {
	MaxConnectionsPerIP     int `mapstructure:"max_connections_per_ip"`
	MaxTotalConnections     int `mapstructure:"max_total_connections"`
	MinConnectionIntervalMs int `mapstructure:"min_connection_interval_ms"`
}

// MessageLimitsConfig 訊息限制配置.
type MessageLimitsConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

var (
	config *Config
	// ENV 當前環境變數.
	ENV string = "local"
)

// Load 載入設定檔.
func Load(testCfg ...*Config) error {
	// 如果直接傳入配置（主要用於測試），設定並驗證
	if len(testCfg) > 0 && testCfg[0] != nil {
		applyDefaults(testCfg[0])
		if err := validateConfig(testCfg[0]); err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}
		config = testCfg[0]
		return nil
	}

	v := viper.New()

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
		// 從檔案名稱推斷環境
		baseName := filepath.Base(configPath)
		ENV = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	} else {
		v.SetConfigName(ENV)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}

	// 允許以環境變數覆蓋，例如 DATABASE_MONGO_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("讀取配置檔案失敗: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置失敗: %w", err)
	}

	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("配置驗證失敗: %w", err)
	}

	config = cfg
	return nil
}

// Get 取得設定.
func Get() *Config {
	return config
}

// SetEnv 設定環境.
func SetEnv(env string) {
	ENV = env
}

// GetEnv 取得當前環境.
func GetEnv() string {
	return ENV
}

// applyDefaults 補上未設定的預設值
func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverMongo
	}
	if cfg.Realtime.WriteWaitSeconds <= 0 {
		cfg.Realtime.WriteWaitSeconds = 10
	}
	if cfg.Realtime.PongWaitSeconds <= 0 {
		cfg.Realtime.PongWaitSeconds = 60
	}
	if cfg.Realtime.PingIntervalSeconds <= 0 || cfg.Realtime.PingIntervalSeconds >= cfg.Realtime.PongWaitSeconds {
		cfg.Realtime.PingIntervalSeconds = cfg.Realtime.PongWaitSeconds * 9 / 10
	}
	if cfg.Realtime.MaxMessageSize <= 0 {
		cfg.Realtime.MaxMessageSize = 64 << 10
	}
	if cfg.Realtime.SendBuffer <= 0 {
		cfg.Realtime.SendBuffer = 256
	}
	if cfg.Realtime.StoreTimeoutSeconds <= 0 {
		cfg.Realtime.StoreTimeoutSeconds = 5
	}
	if cfg.Reaper.IntervalSeconds <= 0 {
		cfg.Reaper.IntervalSeconds = 60
	}
	if cfg.Reaper.TimeoutSeconds <= 0 {
		cfg.Reaper.TimeoutSeconds = 30
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "./public/uploads"
	}
	if cfg.Upload.URLPrefix == "" {
		cfg.Upload.URLPrefix = "/uploads/"
	}
	if cfg.Upload.MaxSizeMB <= 0 {
		cfg.Upload.MaxSizeMB = 25
	}
}

// validateConfig 驗證配置的有效性
func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("應用程式名稱不能為空")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("應用程式版本不能為空")
	}

	if cfg.Server.Host == "" {
		return fmt.Errorf("伺服器主機不能為空")
	}
	if cfg.Server.Port == "" {
		return fmt.Errorf("伺服器端口不能為空")
	}
	if cfg.Server.Timeout <= 0 {
		return fmt.Errorf("伺服器超時時間必須大於 0")
	}

	if cfg.GRPC.Enabled && cfg.GRPC.Port == "" {
		return fmt.Errorf("gRPC 端口不能為空")
	}

	switch cfg.Database.Driver {
	case DriverMemory:
	case DriverMongo:
		if cfg.Database.Mongo.URL == "" {
			return fmt.Errorf("MongoDB URL 不能為空")
		}
		if cfg.Database.Mongo.Database == "" {
			return fmt.Errorf("MongoDB 資料庫名稱不能為空")
		}
		if cfg.Database.Mongo.MaxPoolSize == 0 {
			return fmt.Errorf("MongoDB 最大連接池大小必須大於 0")
		}
		if cfg.Database.Mongo.MinPoolSize > cfg.Database.Mongo.MaxPoolSize {
			return fmt.Errorf("MongoDB 最小連接池大小不能大於最大連接池大小")
		}
	default:
		return fmt.Errorf("不支援的資料庫驅動: %s", cfg.Database.Driver)
	}

	if cfg.Log.RotationTimeHours <= 0 {
		return fmt.Errorf("日誌輪轉時間必須大於 0")
	}
	if cfg.Log.MaxAgeDays <= 0 {
		return fmt.Errorf("日誌保留天數必須大於 0")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("日誌檔案最大大小必須大於 0")
	}

	return nil
}

// IsDebug 檢查是否為除錯模式
func IsDebug() bool {
	if config != nil {
		return config.App.Debug
	}
	return false
}

// GetServerAddr 取得伺服器地址
func GetServerAddr() string {
	if config != nil {
		return fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)
	}
	return "localhost:3000"
}

// GetGRPCAddr 取得 gRPC 健康檢查地址
func GetGRPCAddr() string {
	if config != nil {
		return fmt.Sprintf("%s:%s", config.GRPC.Host, config.GRPC.Port)
	}
	return "localhost:8081"
}

// Duration 將秒數轉為 time.Duration.
func Duration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
