package message

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes 創建訊息集合索引.
func (s *MessageStore) EnsureIndexes(ctx context.Context) error {
	// 1. 對話查詢：sender + receiver + 建立時間
	conversationIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "sender", Value: 1},
			{Key: "receiver", Value: 1},
			{Key: "created_at", Value: 1},
		},
		Options: options.Index().SetName("conversation_time_idx"),
	}

	// 2. 過期清理
	expiresIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "expires_at", Value: 1},
		},
		Options: options.Index().SetName("expires_at_idx"),
	}

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{conversationIndex, expiresIndex})
	return err
}

// IndexNames 列出訊息集合上的索引名稱.
func (s *MessageStore) IndexNames(ctx context.Context) ([]string, error) {
	cursor, err := s.collection.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}

	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		if name, ok := idx["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
