package user

import (
	"context"
	"errors"
	"fmt"

	"chat-relay/internal/apperr"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UserStore MongoDB 用戶目錄實作.
type UserStore struct {
	collection *mongo.Collection
	clock      clockwork.Clock
}

var _ Directory = (*UserStore)(nil)

// NewUserStore 創建新的用戶存儲.
func NewUserStore(db *mongo.Database, clock clockwork.Clock) *UserStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &UserStore{
		collection: db.Collection(CollectionName),
		clock:      clock,
	}
}

// EnsureIndexes 建立 username_lower 唯一索引.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username_lower", Value: 1}},
		Options: options.Index().SetName("username_lower_unique").SetUnique(true),
	})
	return err
}

// FindByHandle 以精確 handle 查詢.
func (s *UserStore) FindByHandle(ctx context.Context, handle string) (*Profile, error) {
	return s.findOne(ctx, bson.M{"username": handle})
}

// FindByHandleCaseInsensitive 不分大小寫查詢.
func (s *UserStore) FindByHandleCaseInsensitive(ctx context.Context, handle string) (*Profile, error) {
	return s.findOne(ctx, bson.M{"username_lower": NormalizeHandle(handle)})
}

// Create 註冊新用戶，handle 不分大小寫重複時回傳 ErrDuplicateIdentity.
func (s *UserStore) Create(ctx context.Context, handle, password string) (*Profile, error) {
	profile, err := NewProfile(handle, password, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	profile.ID = bson.NewObjectID()
	if _, err := s.collection.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("create %q: %w", handle, apperr.ErrDuplicateIdentity)
		}
		return nil, apperr.Storage("insert user", err)
	}
	return profile, nil
}

// Authenticate 驗證帳號密碼.
func (s *UserStore) Authenticate(ctx context.Context, handle, password string) (*Profile, error) {
	profile, err := s.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}
	if !CheckPassword(profile.PasswordHash, password) {
		return nil, apperr.ErrUnauthorized
	}
	return profile, nil
}

// UpdateProfile 更新個人資料.
func (s *UserStore) UpdateProfile(ctx context.Context, handle string, update ProfileUpdate) (*Profile, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var profile Profile
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"username": handle},
		bson.M{"$set": update.SetFields(s.clock.Now().UTC())},
		opts,
	).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("update %q: %w", handle, apperr.ErrNotFound)
		}
		return nil, apperr.Storage("update user", err)
	}
	return &profile, nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*Profile, error) {
	var profile Profile
	if err := s.collection.FindOne(ctx, filter).Decode(&profile); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Storage("find user", err)
	}
	return &profile, nil
}
