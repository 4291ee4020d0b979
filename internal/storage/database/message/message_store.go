package message

import (
	"context"
	"time"

	"chat-relay/internal/apperr"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessageStore MongoDB 訊息存儲實作.
type MessageStore struct {
	collection *mongo.Collection
	clock      clockwork.Clock
}

var _ Repository = (*MessageStore)(nil)

// NewMessageStore 創建新的訊息存儲.
func NewMessageStore(db *mongo.Database, clock clockwork.Clock) *MessageStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MessageStore{
		collection: db.Collection(CollectionName),
		clock:      clock,
	}
}

// Insert 寫入訊息，回傳新訊息的 ID.
func (s *MessageStore) Insert(ctx context.Context, msg *Message) (string, error) {
	if err := Prepare(msg, s.clock.Now()); err != nil {
		return "", err
	}
	msg.ID = bson.NewObjectID()

	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		return "", apperr.Storage("insert message", err)
	}
	return msg.ID.Hex(), nil
}

// History 取得兩人之間的對話紀錄，依建立時間遞增排序.
func (s *MessageStore) History(ctx context.Context, a, b string) ([]*Message, error) {
	filter := bson.M{
		"$and": bson.A{
			ConversationFilter(a, b),
			bson.M{"$or": bson.A{
				bson.M{"expires_at": nil},
				bson.M{"expires_at": bson.M{"$gte": s.clock.Now()}},
			}},
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Storage("find history", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*Message, 0)
	for cursor.Next(ctx) {
		var msg Message
		if err := cursor.Decode(&msg); err != nil {
			return nil, apperr.Storage("decode message", err)
		}
		messages = append(messages, &msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, apperr.Storage("iterate history", err)
	}

	return messages, nil
}

// DeleteByID 刪除單則訊息，不存在或 ID 格式錯誤時回傳 false.
func (s *MessageStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return false, apperr.Storage("delete message", err)
	}
	return res.DeletedCount > 0, nil
}

// DeleteBetween 刪除兩人之間雙向的所有訊息.
func (s *MessageStore) DeleteBetween(ctx context.Context, a, b string) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, ConversationFilter(a, b))
	if err != nil {
		return 0, apperr.Storage("clear conversation", err)
	}
	return res.DeletedCount, nil
}

// DeleteExpiredBefore 刪除過期時間早於 now 的訊息.
func (s *MessageStore) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, ExpiredFilter(now))
	if err != nil {
		return 0, apperr.Storage("delete expired", err)
	}
	return res.DeletedCount, nil
}
