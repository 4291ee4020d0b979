package message_test

import (
	"context"
	"testing"
	"time"

	"chat-relay/internal/apperr"
	"chat-relay/internal/storage/database/message"
	"chat-relay/internal/testutil"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestMessageStore_Mongo(t *testing.T) {
	db := testutil.MongoForTest(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(t0)
	store := message.NewMessageStore(db, clock)

	require.NoError(t, store.EnsureIndexes(ctx))

	t.Run("indexes", func(t *testing.T) {
		req := require.New(t)
		names, err := store.IndexNames(ctx)
		req.NoError(err)
		req.Contains(names, "conversation_time_idx")
		req.Contains(names, "expires_at_idx")
	})

	t.Run("insert and history in both directions", func(t *testing.T) {
		req := require.New(t)
		expires := t0.Add(24 * time.Hour)

		id1, err := store.Insert(ctx, &message.Message{Sender: "alice", Receiver: "bob", Body: "hi", ExpiresAt: &expires})
		req.NoError(err)
		id2, err := store.Insert(ctx, &message.Message{Sender: "bob", Receiver: "alice", Body: "yo", Kind: message.KindImage, AttachmentRef: "/uploads/x.png"})
		req.NoError(err)

		ab, err := store.History(ctx, "alice", "bob")
		req.NoError(err)
		ba, err := store.History(ctx, "bob", "alice")
		req.NoError(err)

		req.Len(ab, 2)
		req.Equal(ab, ba)
		req.Equal(id1, ab[0].ID.Hex())
		req.Equal(id2, ab[1].ID.Hex())
		req.Equal(message.KindText, ab[0].Kind)
		req.NotNil(ab[0].ExpiresAt)
		req.Equal(24*time.Hour, ab[0].ExpiresAt.Sub(ab[0].CreatedAt))
		req.Nil(ab[1].ExpiresAt)
	})

	t.Run("delete by id is idempotent", func(t *testing.T) {
		req := require.New(t)
		id, err := store.Insert(ctx, &message.Message{Sender: "carol", Receiver: "dave"})
		req.NoError(err)

		ok, err := store.DeleteByID(ctx, id)
		req.NoError(err)
		req.True(ok)

		ok, err = store.DeleteByID(ctx, id)
		req.NoError(err)
		req.False(ok)

		ok, err = store.DeleteByID(ctx, "zzz")
		req.NoError(err)
		req.False(ok)
	})

	t.Run("delete between leaves other conversations", func(t *testing.T) {
		req := require.New(t)
		for _, pair := range [][2]string{{"e", "f"}, {"f", "e"}, {"e", "g"}} {
			_, err := store.Insert(ctx, &message.Message{Sender: pair[0], Receiver: pair[1]})
			req.NoError(err)
		}

		n, err := store.DeleteBetween(ctx, "f", "e")
		req.NoError(err)
		req.Equal(int64(2), n)

		left, err := store.History(ctx, "e", "g")
		req.NoError(err)
		req.Len(left, 1)
	})

	t.Run("delete expired keeps null and future rows", func(t *testing.T) {
		req := require.New(t)
		past := t0.Add(-time.Minute)
		future := t0.Add(time.Minute)
		for _, exp := range []*time.Time{&past, &future, nil} {
			_, err := store.Insert(ctx, &message.Message{Sender: "h", Receiver: "i", ExpiresAt: exp})
			req.NoError(err)
		}

		n, err := store.DeleteExpiredBefore(ctx, t0)
		req.NoError(err)
		req.GreaterOrEqual(n, int64(1))

		left, err := store.History(ctx, "h", "i")
		req.NoError(err)
		req.Len(left, 2)
	})

	t.Run("validation happens before storage", func(t *testing.T) {
		_, err := store.Insert(ctx, &message.Message{Receiver: "bob"})
		require.ErrorIs(t, err, apperr.ErrValidation)
	})
}
