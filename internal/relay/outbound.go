package relay

import (
	"encoding/json"

	"chat-relay/internal/apperr"
	"chat-relay/internal/storage/database/message"
)

// 送往連線的事件名稱.
const (
	EventJoined          = "joined"
	EventMessageReceived = "messageReceived"
	EventMessageDeleted  = "messageDeleted"
	EventChatCleared     = "chatCleared"
	EventCallAccepted    = "callAccepted"
	EventError           = "error"
)

// Outbound 送往連線的事件.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinedData join 確認.
type JoinedData struct {
	Handle string `json:"handle"`
	ConnID string `json:"connId"`
}

// MessagePayload 投遞的訊息：原始欄位加上儲存後的 id 與時間.
type MessagePayload struct {
	*message.Message
	TTL string `json:"ttl,omitempty"`
}

// ConversationData chatCleared 的對話雙方.
type ConversationData struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// ErrorData 錯誤事件內容.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// CallPayload callUser 轉送內容.
type CallPayload struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}

// ErrorEvent 由錯誤建立 error 事件，不外洩內部細節.
func ErrorEvent(event string, err error) Outbound {
	return Outbound{
		Event: EventError,
		Data: ErrorData{
			Code:    apperr.Code(err),
			Message: apperr.PublicMessage(err),
			Event:   event,
		},
	}
}
