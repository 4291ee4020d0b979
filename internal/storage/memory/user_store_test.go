package memory

import (
	"context"
	"testing"

	"chat-relay/internal/apperr"
	"chat-relay/internal/storage/database/user"

	"github.com/stretchr/testify/require"
)

func TestUserStore_CreateRejectsCaseInsensitiveDuplicate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewUserStore(nil)

	created, err := store.Create(ctx, "Alice", "secret")
	req.NoError(err)
	req.Equal("Alice", created.Username)
	req.NotEqual("secret", created.PasswordHash)

	_, err = store.Create(ctx, "alice", "other")
	req.ErrorIs(err, apperr.ErrDuplicateIdentity)
}

func TestUserStore_Lookups(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewUserStore(nil)
	_, err := store.Create(ctx, "Alice", "secret")
	req.NoError(err)

	found, err := store.FindByHandleCaseInsensitive(ctx, "aLiCe")
	req.NoError(err)
	req.Equal("Alice", found.Username)

	_, err = store.FindByHandle(ctx, "alice")
	req.ErrorIs(err, apperr.ErrNotFound)

	found, err = store.FindByHandle(ctx, "Alice")
	req.NoError(err)
	req.Equal("Alice", found.Username)
}

func TestUserStore_Authenticate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewUserStore(nil)
	_, err := store.Create(ctx, "bob", "hunter2")
	req.NoError(err)

	profile, err := store.Authenticate(ctx, "bob", "hunter2")
	req.NoError(err)
	req.Equal("bob", profile.Username)

	_, err = store.Authenticate(ctx, "bob", "wrong")
	req.ErrorIs(err, apperr.ErrUnauthorized)

	_, err = store.Authenticate(ctx, "nobody", "hunter2")
	req.ErrorIs(err, apperr.ErrUnauthorized)
}

func TestUserStore_UpdateProfile(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewUserStore(nil)
	_, err := store.Create(ctx, "bob", "hunter2")
	req.NoError(err)

	bio := "hello there"
	pic := "/uploads/FILE-1-abcd.png"
	updated, err := store.UpdateProfile(ctx, "bob", user.ProfileUpdate{Bio: &bio, ProfilePic: &pic})
	req.NoError(err)
	req.Equal(bio, updated.Bio)
	req.Equal(pic, updated.ProfilePic)

	// 只更新 bio 時保留原本的頭像
	bio2 := "changed"
	updated, err = store.UpdateProfile(ctx, "bob", user.ProfileUpdate{Bio: &bio2})
	req.NoError(err)
	req.Equal(pic, updated.ProfilePic)

	_, err = store.UpdateProfile(ctx, "ghost", user.ProfileUpdate{Bio: &bio})
	req.ErrorIs(err, apperr.ErrNotFound)
}
