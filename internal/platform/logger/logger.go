// Package logger 輸出 GCP Cloud Logging 格式的 JSON 日誌，同時寫到 stdout 與輪轉檔案.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"chat-relay/internal/platform/config"

	"github.com/google/uuid"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// Severity GCP Cloud Logging 嚴重級別
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityNotice   Severity = "NOTICE"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityDebug:    0,
	SeverityInfo:     1,
	SeverityNotice:   2,
	SeverityWarning:  3,
	SeverityError:    4,
	SeverityCritical: 5,
}

// LogEntry GCP Cloud Logging 格式的日誌條目
type LogEntry struct {
	Severity       Severity          `json:"severity"`
	Message        string            `json:"message"`
	Timestamp      string            `json:"timestamp"`
	TraceID        string            `json:"trace,omitempty"` // projects/[PROJECT_ID]/traces/[TRACE_ID]
	HTTPRequest    *HTTPRequest      `json:"httpRequest,omitempty"`
	SourceLocation *SourceLocation   `json:"sourceLocation,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	InsertID       string            `json:"insertId,omitempty"`

	Handle    string                 `json:"handle,omitempty"`
	ConnID    string                 `json:"connId,omitempty"`
	MessageID string                 `json:"messageId,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HTTPRequest HTTP 請求信息
type HTTPRequest struct {
	RequestMethod string `json:"requestMethod,omitempty"`
	RequestURL    string `json:"requestUrl,omitempty"`
	Status        int    `json:"status,omitempty"`
	ResponseSize  int64  `json:"responseSize,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
	RemoteIP      string `json:"remoteIp,omitempty"`
	Latency       string `json:"latency,omitempty"` // 格式: "1.234s"
	Protocol      string `json:"protocol,omitempty"`
}

// SourceLocation 源代碼位置
type SourceLocation struct {
	File     string `json:"file,omitempty"`
	Line     int64  `json:"line,omitempty"`
	Function string `json:"function,omitempty"`
}

type output struct {
	mu       sync.Mutex
	file     io.Writer
	console  io.Writer
	minLevel int
	project  string
	service  string
}

var out = &output{
	console:  os.Stdout,
	minLevel: severityRank[SeverityInfo],
	project:  "local-dev",
	service:  "chat-relay",
}

type traceKey struct{}

// InitLogger 依配置初始化輸出，須在 config.Load 之後呼叫.
//
// 環境變數 LOG_PATH、GCP_PROJECT_ID、SERVICE_NAME 可覆蓋預設值.
func InitLogger() error {
	logDir := envOr("LOG_PATH", "./logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return err
	}

	rotationHours, maxAgeDays, maxSizeMB := 24, 30, 100
	service := "chat-relay"
	debug := false
	if cfg := config.Get(); cfg != nil {
		if cfg.Log.RotationTimeHours > 0 {
			rotationHours = cfg.Log.RotationTimeHours
		}
		if cfg.Log.MaxAgeDays > 0 {
			maxAgeDays = cfg.Log.MaxAgeDays
		}
		if cfg.Log.MaxSizeMB > 0 {
			maxSizeMB = cfg.Log.MaxSizeMB
		}
		if cfg.App.Name != "" {
			service = cfg.App.Name
		}
		debug = cfg.App.Debug
	}

	logFileName := filepath.Join(logDir, "app.log")
	writer, err := rotatelogs.New(
		logFileName+".%Y%m%d",
		rotatelogs.WithLinkName(logFileName),
		rotatelogs.WithRotationTime(time.Duration(rotationHours)*time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAgeDays)*24*time.Hour),
		rotatelogs.WithRotationSize(int64(maxSizeMB)*1024*1024),
	)
	if err != nil {
		return err
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	out.file = writer
	out.project = envOr("GCP_PROJECT_ID", "local-dev")
	out.service = envOr("SERVICE_NAME", service)
	out.minLevel = severityRank[SeverityInfo]
	if debug {
		out.minLevel = severityRank[SeverityDebug]
	}
	return nil
}

// CloseLogger 關閉日誌檔案
func CloseLogger() {
	out.mu.Lock()
	defer out.mu.Unlock()
	if closer, ok := out.file.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}
	out.file = nil
}

// SetOutput 把主控台輸出導向 w 並開啟 DEBUG，回傳還原函數，測試用.
func SetOutput(w io.Writer) (restore func()) {
	out.mu.Lock()
	prevConsole, prevFile, prevLevel := out.console, out.file, out.minLevel
	out.console, out.file, out.minLevel = w, nil, severityRank[SeverityDebug]
	out.mu.Unlock()

	return func() {
		out.mu.Lock()
		out.console, out.file, out.minLevel = prevConsole, prevFile, prevLevel
		out.mu.Unlock()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetTraceID 從 context 取得 GCP 格式的 trace
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, ok := ctx.Value(traceKey{}).(string)
	if !ok || traceID == "" {
		return ""
	}

	out.mu.Lock()
	project := out.project
	out.mu.Unlock()
	return fmt.Sprintf("projects/%s/traces/%s", project, traceID)
}

// NewTraceID 生成新的 trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID 將 trace ID 添加到 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// Log 通用日誌方法，低於最低級別的條目直接丟棄
func Log(ctx context.Context, severity Severity, message string, opts ...LogOption) {
	out.mu.Lock()
	enabled := severityRank[severity] >= out.minLevel
	service := out.service
	out.mu.Unlock()
	if !enabled {
		return
	}

	entry := &LogEntry{
		Severity:       severity,
		Message:        message,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		TraceID:        GetTraceID(ctx),
		SourceLocation: sourceLocation(3),
		InsertID:       uuid.New().String(),
		Labels:         map[string]string{"service": service},
	}
	for _, opt := range opts {
		opt(entry)
	}

	write(entry)
}

func write(entry *LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	line := append(data, '\n')

	// 連線 goroutine 會並發寫入
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.file != nil {
		_, _ = out.file.Write(line)
	}
	if out.console != nil {
		_, _ = out.console.Write(line)
	}
}

func sourceLocation(skip int) *SourceLocation {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}

	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcName = fn.Name()
	}
	return &SourceLocation{
		File:     filepath.Base(file),
		Line:     int64(line),
		Function: funcName,
	}
}

// LogOption 日誌選項
type LogOption func(*LogEntry)

// WithHandle 用戶 handle
func WithHandle(handle string) LogOption {
	return func(e *LogEntry) { e.Handle = handle }
}

// WithConnID 連線 ID
func WithConnID(connID string) LogOption {
	return func(e *LogEntry) { e.ConnID = connID }
}

// WithMessageID 訊息 ID
func WithMessageID(messageID string) LogOption {
	return func(e *LogEntry) { e.MessageID = messageID }
}

// WithAction 操作名稱
func WithAction(action string) LogOption {
	return func(e *LogEntry) { e.Action = action }
}

// WithDetails 合併詳細信息
func WithDetails(details map[string]interface{}) LogOption {
	return func(e *LogEntry) {
		if e.Details == nil {
			e.Details = make(map[string]interface{}, len(details))
		}
		for k, v := range details {
			e.Details[k] = v
		}
	}
}

// WithError 把錯誤放進 details.error
func WithError(err error) LogOption {
	return func(e *LogEntry) {
		if err == nil {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]interface{}, 1)
		}
		e.Details["error"] = err.Error()
	}
}

// WithHTTPRequest HTTP 請求信息
func WithHTTPRequest(req *HTTPRequest) LogOption {
	return func(e *LogEntry) { e.HTTPRequest = req }
}

// WithLabels 添加標籤
func WithLabels(labels map[string]string) LogOption {
	return func(e *LogEntry) {
		if e.Labels == nil {
			e.Labels = make(map[string]string, len(labels))
		}
		for k, v := range labels {
			e.Labels[k] = v
		}
	}
}

// Debug 記錄 DEBUG 級別日誌
func Debug(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityDebug, message, opts...)
}

// Info 記錄 INFO 級別日誌
func Info(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityInfo, message, opts...)
}

// Warning 記錄 WARNING 級別日誌
func Warning(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityWarning, message, opts...)
}

// Error 記錄 ERROR 級別日誌
func Error(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityError, message, opts...)
}

// Critical 記錄 CRITICAL 級別日誌
func Critical(ctx context.Context, message string, opts ...LogOption) {
	Log(ctx, SeverityCritical, message, opts...)
}

// Infof 格式化 INFO 日誌
func Infof(ctx context.Context, format string, args ...interface{}) {
	Log(ctx, SeverityInfo, fmt.Sprintf(format, args...))
}

// Warningf 格式化 WARNING 日誌
func Warningf(ctx context.Context, format string, args ...interface{}) {
	Log(ctx, SeverityWarning, fmt.Sprintf(format, args...))
}

// Errorf 格式化 ERROR 日誌
func Errorf(ctx context.Context, format string, args ...interface{}) {
	Log(ctx, SeverityError, fmt.Sprintf(format, args...))
}
