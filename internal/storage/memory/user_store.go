package memory

import (
	"context"
	"fmt"
	"sync"

	"chat-relay/internal/apperr"
	"chat-relay/internal/storage/database/user"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// UserStore 記憶體用戶目錄，以小寫 handle 為唯一鍵.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*user.Profile
	clock clockwork.Clock
}

var _ user.Directory = (*UserStore)(nil)

// NewUserStore 創建記憶體用戶目錄.
func NewUserStore(clock clockwork.Clock) *UserStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &UserStore{
		users: make(map[string]*user.Profile),
		clock: clock,
	}
}

// FindByHandle 以精確 handle 查詢.
func (s *UserStore) FindByHandle(_ context.Context, handle string) (*user.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[user.NormalizeHandle(handle)]
	if !ok || p.Username != handle {
		return nil, apperr.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// FindByHandleCaseInsensitive 不分大小寫查詢.
func (s *UserStore) FindByHandleCaseInsensitive(_ context.Context, handle string) (*user.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[user.NormalizeHandle(handle)]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Create 註冊新用戶.
func (s *UserStore) Create(_ context.Context, handle, password string) (*user.Profile, error) {
	profile, err := user.NewProfile(handle, password, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[profile.UsernameLower]; exists {
		return nil, fmt.Errorf("create %q: %w", handle, apperr.ErrDuplicateIdentity)
	}
	profile.ID = bson.NewObjectID()
	s.users[profile.UsernameLower] = profile

	cp := *profile
	return &cp, nil
}

// Authenticate 驗證帳號密碼.
func (s *UserStore) Authenticate(ctx context.Context, handle, password string) (*user.Profile, error) {
	profile, err := s.FindByHandle(ctx, handle)
	if err != nil {
		return nil, apperr.ErrUnauthorized
	}
	if !user.CheckPassword(profile.PasswordHash, password) {
		return nil, apperr.ErrUnauthorized
	}
	return profile, nil
}

// UpdateProfile 更新個人資料.
func (s *UserStore) UpdateProfile(_ context.Context, handle string, update user.ProfileUpdate) (*user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.users[user.NormalizeHandle(handle)]
	if !ok || p.Username != handle {
		return nil, fmt.Errorf("update %q: %w", handle, apperr.ErrNotFound)
	}
	update.Apply(p, s.clock.Now().UTC())

	cp := *p
	return &cp, nil
}
