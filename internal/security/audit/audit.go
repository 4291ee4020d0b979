package audit

import (
	"context"
	"time"

	"chat-relay/internal/platform/logger"
)

// AuditService 審計服務
type AuditService struct {
	enabled bool
	sink    func(ctx context.Context, event AuditEvent)
}

// NewAuditService 創建審計服務
func NewAuditService(enabled bool) *AuditService {
	return &AuditService{
		enabled: enabled,
		sink:    writeLog,
	}
}

// NewRecorder 創建把事件交給 sink 的審計服務，主要用於測試
func NewRecorder(sink func(ctx context.Context, event AuditEvent)) *AuditService {
	return &AuditService{enabled: true, sink: sink}
}

// AuditEvent 審計事件
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Handle    string                 `json:"handle,omitempty"`
	Peer      string                 `json:"peer,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"` // success, failure
	Details   map[string]interface{} `json:"details,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
}

// LogMessageSent 記錄訊息發送
func (a *AuditService) LogMessageSent(ctx context.Context, sender, receiver, messageID, kind string, expiresAt *time.Time) {
	if !a.IsEnabled() {
		return
	}

	details := map[string]interface{}{"kind": kind}
	if expiresAt != nil {
		details["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}

	a.log(ctx, AuditEvent{
		EventType: "message_sent",
		Handle:    sender,
		Peer:      receiver,
		MessageID: messageID,
		Action:    "send_message",
		Result:    "success",
		Details:   details,
	})
}

// LogMessageDeleted 記錄收回訊息
func (a *AuditService) LogMessageDeleted(ctx context.Context, sender, receiver, messageID string, existed bool) {
	if !a.IsEnabled() {
		return
	}

	a.log(ctx, AuditEvent{
		EventType: "message_deleted",
		Handle:    sender,
		Peer:      receiver,
		MessageID: messageID,
		Action:    "delete_for_everyone",
		Result:    "success",
		Details:   map[string]interface{}{"existed": existed},
	})
}

// LogChatCleared 記錄清除對話
func (a *AuditService) LogChatCleared(ctx context.Context, sender, receiver string, removed int64) {
	if !a.IsEnabled() {
		return
	}

	a.log(ctx, AuditEvent{
		EventType: "chat_cleared",
		Handle:    sender,
		Peer:      receiver,
		Action:    "clear_chat",
		Result:    "success",
		Details:   map[string]interface{}{"removed": removed},
	})
}

// LogRegistration 記錄註冊
func (a *AuditService) LogRegistration(ctx context.Context, handle string) {
	if !a.IsEnabled() {
		return
	}

	a.log(ctx, AuditEvent{
		EventType: "registration",
		Handle:    handle,
		Action:    "register",
		Result:    "success",
	})
}

// LogAuthenticationFailure 記錄認證失敗
func (a *AuditService) LogAuthenticationFailure(ctx context.Context, handle, reason string) {
	if !a.IsEnabled() {
		return
	}

	a.log(ctx, AuditEvent{
		EventType: "authentication",
		Handle:    handle,
		Action:    "authenticate",
		Result:    "failure",
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogRateLimitExceeded 記錄速率限制超過
func (a *AuditService) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	if !a.IsEnabled() {
		return
	}

	a.log(ctx, AuditEvent{
		EventType: "rate_limit",
		Action:    "api_request",
		Result:    "blocked",
		IPAddress: ipAddress,
		Details: map[string]interface{}{
			"endpoint": endpoint,
			"reason":   "rate_limit_exceeded",
		},
	})
}

// IsEnabled 檢查審計是否啟用
func (a *AuditService) IsEnabled() bool {
	return a != nil && a.enabled
}

func (a *AuditService) log(ctx context.Context, event AuditEvent) {
	event.Timestamp = time.Now().UTC()
	enrichWithMetadata(ctx, &event)
	a.sink(ctx, event)
}

// writeLog 以 NOTICE 級別寫入結構化日誌
func writeLog(ctx context.Context, event AuditEvent) {
	details := map[string]interface{}{
		"event_type": event.EventType,
		"result":     event.Result,
	}
	if event.Peer != "" {
		details["peer"] = event.Peer
	}
	if event.IPAddress != "" {
		details["ip_address"] = event.IPAddress
	}
	if event.UserAgent != "" {
		details["user_agent"] = event.UserAgent
	}
	for k, v := range event.Details {
		details[k] = v
	}

	logger.Log(ctx, logger.SeverityNotice, "[AUDIT] "+event.EventType,
		logger.WithHandle(event.Handle),
		logger.WithMessageID(event.MessageID),
		logger.WithAction(event.Action),
		logger.WithDetails(details),
		logger.WithLabels(map[string]string{"log_type": "audit"}),
	)
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// WithClient 把客戶端資訊放進 context，審計事件會自動帶上
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{ip: ip, userAgent: userAgent})
}

// enrichWithMetadata 從 context 提取元數據並豐富審計事件
func enrichWithMetadata(ctx context.Context, event *AuditEvent) {
	if ctx == nil {
		return
	}
	if c, ok := ctx.Value(clientKey{}).(client); ok {
		if event.IPAddress == "" {
			event.IPAddress = c.ip
		}
		event.UserAgent = c.userAgent
	}
}
