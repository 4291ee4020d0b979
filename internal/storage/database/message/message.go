package message

import (
	"context"
	"time"

	"chat-relay/internal/apperr"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// 訊息類型.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
	KindAudio = "audio"
	KindVideo = "video"
)

// CollectionName 訊息集合名稱.
const CollectionName = "messages"

// Repository 訊息倉儲接口.
type Repository interface {
	Insert(ctx context.Context, msg *Message) (string, error)
	History(ctx context.Context, a, b string) ([]*Message, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteBetween(ctx context.Context, a, b string) (int64, error)
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}

// Message 私訊數據模型.
//
// ExpiresAt 為 nil 表示永不過期，存成明確的 null 讓過期查詢可以用 $ne: null 過濾.
type Message struct {
	ID            bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Sender        string        `bson:"sender" json:"sender"`
	Receiver      string        `bson:"receiver" json:"receiver"`
	Body          string        `bson:"body,omitempty" json:"body,omitempty"`
	AttachmentRef string        `bson:"attachment_ref,omitempty" json:"attachmentRef,omitempty"`
	Kind          string        `bson:"kind" json:"kind"`
	CreatedAt     time.Time     `bson:"created_at" json:"createdAt"`
	ExpiresAt     *time.Time    `bson:"expires_at" json:"expiresAt"`
}

// IsValidKind 檢查訊息類型.
func IsValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindFile, KindAudio, KindVideo:
		return true
	}
	return false
}

// Expired 判斷訊息在 now 時是否已過期.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// Involves 判斷訊息是否屬於 a 與 b 之間的對話（不分方向）.
func (m *Message) Involves(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}

// Prepare 補上預設值並檢查必填欄位，Insert 前由各實作呼叫.
func Prepare(msg *Message, now time.Time) error {
	if msg == nil {
		return apperr.Validation("message", "is required")
	}
	if msg.Sender == "" {
		return apperr.Validation("sender", "is required")
	}
	if msg.Receiver == "" {
		return apperr.Validation("receiver", "is required")
	}
	if msg.Kind == "" {
		msg.Kind = KindText
	}
	if !IsValidKind(msg.Kind) {
		return apperr.Validation("kind", "unsupported message kind")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	// Mongo 只保存到毫秒
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Millisecond)
	if msg.ExpiresAt != nil {
		exp := msg.ExpiresAt.UTC().Truncate(time.Millisecond)
		msg.ExpiresAt = &exp
	}
	return nil
}

// ConversationFilter 兩人之間雙向對話的查詢條件.
func ConversationFilter(a, b string) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"sender": a, "receiver": b},
			bson.M{"sender": b, "receiver": a},
		},
	}
}

// ExpiredFilter 過期時間早於 now 的查詢條件，不含永不過期的訊息.
func ExpiredFilter(now time.Time) bson.M {
	return bson.M{"expires_at": bson.M{"$ne": nil, "$lt": now}}
}
