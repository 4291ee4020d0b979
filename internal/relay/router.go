package relay

import (
	"context"
	"time"

	"chat-relay/internal/platform/logger"
	"chat-relay/internal/security/audit"
	"chat-relay/internal/storage/database/message"

	"github.com/jonboulle/clockwork"
)

const defaultStoreTimeout = 5 * time.Second

// Router 驗證、保存並分送入站事件.
type Router struct {
	messages     message.Repository
	registry     ChannelRegistry
	decoder      *Decoder
	clock        clockwork.Clock
	audit        *audit.AuditService
	storeTimeout time.Duration
}

// Option Router 選項.
type Option func(*Router)

// WithClock 設定時鐘.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Router) { r.clock = clock }
}

// WithAudit 設定審計服務.
func WithAudit(svc *audit.AuditService) Option {
	return func(r *Router) { r.audit = svc }
}

// WithStoreTimeout 設定每次存儲呼叫的逾時.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// WithMaxBodyLength 設定訊息內容長度上限.
func WithMaxBodyLength(n int) Option {
	return func(r *Router) { r.decoder = NewDecoder(n) }
}

// NewRouter 創建事件路由.
func NewRouter(messages message.Repository, registry ChannelRegistry, opts ...Option) *Router {
	r := &Router{
		messages:     messages,
		registry:     registry,
		clock:        clockwork.NewRealClock(),
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.decoder == nil {
		r.decoder = NewDecoder(0)
	}
	return r
}

// HandleFrame 解析並處理一個原始事件框，錯誤只回報給發送者.
func (r *Router) HandleFrame(ctx context.Context, from Conn, raw []byte) {
	name, ev, err := r.decoder.Decode(raw)
	if err != nil {
		logger.Warning(ctx, "拒絕無效事件",
			logger.WithConnID(from.ID()),
			logger.WithAction(name),
			logger.WithError(err))
		from.Send(ErrorEvent(name, err))
		return
	}
	r.Handle(ctx, from, ev)
}

// Handle 處理已驗證的事件.
func (r *Router) Handle(ctx context.Context, from Conn, ev Inbound) {
	switch e := ev.(type) {
	case JoinEvent:
		r.join(ctx, from, e)
	case SendEvent:
		r.send(ctx, from, e)
	case DeleteEvent:
		r.deleteForEveryone(ctx, from, e)
	case ClearEvent:
		r.clearChat(ctx, from, e)
	case RelayEvent:
		r.relay(ctx, from, e)
	}
}

// Leave 連線結束時移除其頻道關聯.
func (r *Router) Leave(conn Conn) {
	r.registry.Leave(conn)
}

func (r *Router) join(ctx context.Context, from Conn, ev JoinEvent) {
	r.registry.Join(ev.Handle, from)
	from.Send(Outbound{Event: EventJoined, Data: JoinedData{Handle: ev.Handle, ConnID: from.ID()}})

	logger.Info(ctx, "連線加入頻道",
		logger.WithConnID(from.ID()),
		logger.WithHandle(ev.Handle),
		logger.WithAction(InboundJoin))
}

func (r *Router) send(ctx context.Context, from Conn, ev SendEvent) {
	now := r.clock.Now().UTC().Truncate(time.Millisecond)
	msg := &message.Message{
		Sender:        ev.Sender,
		Receiver:      ev.Receiver,
		Body:          ev.Body,
		AttachmentRef: ev.AttachmentRef,
		Kind:          ev.Kind,
		CreatedAt:     now,
		ExpiresAt:     ExpiresAt(ev.TTL, now),
	}

	sctx, cancel := r.storeContext(ctx)
	id, err := r.messages.Insert(sctx, msg)
	cancel()
	if err != nil {
		r.reject(ctx, from, ev.EventName(), err)
		return
	}

	delivered := r.deliver(Outbound{
		Event: EventMessageReceived,
		Data:  MessagePayload{Message: msg, TTL: ev.TTL},
	}, ev.Receiver, ev.Sender)

	r.audit.LogMessageSent(ctx, ev.Sender, ev.Receiver, id, msg.Kind, msg.ExpiresAt)
	logger.Info(ctx, "訊息已保存並分送",
		logger.WithConnID(from.ID()),
		logger.WithHandle(ev.Sender),
		logger.WithMessageID(id),
		logger.WithAction(InboundPrivateMessage),
		logger.WithDetails(map[string]interface{}{
			"receiver":  ev.Receiver,
			"delivered": delivered,
			"ttl":       ev.TTL,
		}))
}

func (r *Router) deleteForEveryone(ctx context.Context, from Conn, ev DeleteEvent) {
	sctx, cancel := r.storeContext(ctx)
	existed, err := r.messages.DeleteByID(sctx, ev.MessageID)
	cancel()
	if err != nil {
		r.reject(ctx, from, ev.EventName(), err)
		return
	}

	// 不存在也照常通知，收回是冪等的
	delivered := r.deliver(Outbound{Event: EventMessageDeleted, Data: ev.MessageID}, ev.Receiver, ev.Sender)

	r.audit.LogMessageDeleted(ctx, ev.Sender, ev.Receiver, ev.MessageID, existed)
	logger.Info(ctx, "訊息已收回",
		logger.WithConnID(from.ID()),
		logger.WithHandle(ev.Sender),
		logger.WithMessageID(ev.MessageID),
		logger.WithAction(InboundDeleteForEveryone),
		logger.WithDetails(map[string]interface{}{"existed": existed, "delivered": delivered}))
}

func (r *Router) clearChat(ctx context.Context, from Conn, ev ClearEvent) {
	sctx, cancel := r.storeContext(ctx)
	removed, err := r.messages.DeleteBetween(sctx, ev.Sender, ev.Receiver)
	cancel()
	if err != nil {
		r.reject(ctx, from, ev.EventName(), err)
		return
	}

	delivered := r.deliver(Outbound{
		Event: EventChatCleared,
		Data:  ConversationData{Sender: ev.Sender, Receiver: ev.Receiver},
	}, ev.Receiver, ev.Sender)

	r.audit.LogChatCleared(ctx, ev.Sender, ev.Receiver, removed)
	logger.Info(ctx, "對話已清除",
		logger.WithConnID(from.ID()),
		logger.WithHandle(ev.Sender),
		logger.WithAction(InboundClearChat),
		logger.WithDetails(map[string]interface{}{
			"receiver":  ev.Receiver,
			"removed":   removed,
			"delivered": delivered,
		}))
}

func (r *Router) relay(ctx context.Context, from Conn, ev RelayEvent) {
	delivered := r.deliver(Outbound{Event: ev.Kind, Data: ev.Payload}, ev.Target)

	logger.Debug(ctx, "轉送信令事件",
		logger.WithConnID(from.ID()),
		logger.WithAction(ev.Name),
		logger.WithDetails(map[string]interface{}{"target": ev.Target, "delivered": delivered}))
}

// deliver 投遞給多個 handle 的所有連線，同一條連線只收一次.
func (r *Router) deliver(out Outbound, handles ...string) int {
	seen := make(map[string]struct{})
	delivered := 0
	for _, h := range handles {
		for _, c := range r.registry.MembersOf(h) {
			if _, dup := seen[c.ID()]; dup {
				continue
			}
			seen[c.ID()] = struct{}{}
			if c.Send(out) {
				delivered++
			}
		}
	}
	return delivered
}

func (r *Router) reject(ctx context.Context, from Conn, event string, err error) {
	logger.Error(ctx, "事件處理失敗",
		logger.WithConnID(from.ID()),
		logger.WithAction(event),
		logger.WithError(err))
	from.Send(ErrorEvent(event, err))
}

// storeContext 與連線生命週期脫鉤，斷線不會中斷已送出的寫入.
func (r *Router) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
}
