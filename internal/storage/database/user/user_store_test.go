package user_test

import (
	"context"
	"testing"
	"time"

	"chat-relay/internal/apperr"
	"chat-relay/internal/storage/database/user"
	"chat-relay/internal/testutil"

	"github.com/stretchr/testify/require"
)

func TestUserStore_Mongo(t *testing.T) {
	req := require.New(t)
	db := testutil.MongoForTest(t)
	ctx := context.Background()
	store := user.NewUserStore(db, nil)
	req.NoError(store.EnsureIndexes(ctx))

	// Given a registered user
	created, err := store.Create(ctx, "Alice", "secret")
	req.NoError(err)
	req.False(created.ID.IsZero())

	// When registering the same handle in another case
	_, err = store.Create(ctx, "ALICE", "x")

	// Then the unique index rejects it
	req.ErrorIs(err, apperr.ErrDuplicateIdentity)

	found, err := store.FindByHandleCaseInsensitive(ctx, "alice")
	req.NoError(err)
	req.Equal("Alice", found.Username)

	_, err = store.Authenticate(ctx, "Alice", "secret")
	req.NoError(err)
	_, err = store.Authenticate(ctx, "Alice", "nope")
	req.ErrorIs(err, apperr.ErrUnauthorized)

	bio := "hi"
	updated, err := store.UpdateProfile(ctx, "Alice", user.ProfileUpdate{Bio: &bio})
	req.NoError(err)
	req.Equal("hi", updated.Bio)

	_, err = store.UpdateProfile(ctx, "ghost", user.ProfileUpdate{Bio: &bio})
	req.ErrorIs(err, apperr.ErrNotFound)
}

func TestNewProfile_Validation(t *testing.T) {
	req := require.New(t)

	_, err := user.NewProfile("  ", "pw", testNow)
	req.ErrorIs(err, apperr.ErrValidation)

	_, err = user.NewProfile("bob", "", testNow)
	req.ErrorIs(err, apperr.ErrValidation)

	p, err := user.NewProfile(" Bob ", "pw", testNow)
	req.NoError(err)
	req.Equal("Bob", p.Username)
	req.Equal("bob", p.UsernameLower)
	req.True(user.CheckPassword(p.PasswordHash, "pw"))
}

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
