package database

import (
	"context"
	"fmt"

	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/storage/database/message"
	"chat-relay/internal/storage/database/user"
	"chat-relay/internal/storage/memory"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories 倉儲集合.
type Repositories struct {
	Driver   string
	Messages message.Repository
	Users    user.Directory
}

// NewRepositories 依 database.driver 創建倉儲集合，mongo 驅動需要傳入已連線的 db.
func NewRepositories(ctx context.Context, cfg *config.Config, db *mongo.Database, clock clockwork.Clock) (*Repositories, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置未載入")
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warning(ctx, "使用記憶體存儲，重啟後資料會遺失")
		return &Repositories{
			Driver:   config.DriverMemory,
			Messages: memory.NewMessageStore(clock),
			Users:    memory.NewUserStore(clock),
		}, nil

	case config.DriverMongo:
		if db == nil {
			return nil, fmt.Errorf("MongoDB 尚未連接")
		}
		return NewMongoRepositories(ctx, db, clock), nil
	}

	return nil, fmt.Errorf("不支援的資料庫驅動: %s", cfg.Database.Driver)
}

// NewMongoRepositories 以既有連線創建 MongoDB 倉儲.
func NewMongoRepositories(ctx context.Context, db *mongo.Database, clock clockwork.Clock) *Repositories {
	messages := message.NewMessageStore(db, clock)
	users := user.NewUserStore(db, clock)

	// 創建索引以優化查詢性能，失敗只記錄不中斷啟動
	if err := messages.EnsureIndexes(ctx); err != nil {
		logger.Error(ctx, "建立訊息索引失敗", logger.WithError(err))
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		logger.Error(ctx, "建立用戶索引失敗", logger.WithError(err))
	}

	return &Repositories{
		Driver:   config.DriverMongo,
		Messages: messages,
		Users:    users,
	}
}
