package message_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chat-relay/internal/apperr"
	handler "chat-relay/internal/message"
	"chat-relay/internal/storage/database/message"
	"chat-relay/internal/storage/memory"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, *memory.MessageStore, *clockwork.FakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewMessageStore(clock)
	h := handler.NewMessageHandler(store)

	r := gin.New()
	r.GET("/get-messages", h.GetMessages)
	return r, store, clock
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestGetMessages(t *testing.T) {
	req := require.New(t)
	r, store, clock := setup(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, &message.Message{Sender: "alice", Receiver: "bob", Body: "hi"})
	req.NoError(err)
	clock.Advance(time.Second)
	_, err = store.Insert(ctx, &message.Message{Sender: "bob", Receiver: "alice", Body: "hey"})
	req.NoError(err)
	_, err = store.Insert(ctx, &message.Message{Sender: "alice", Receiver: "carol", Body: "other"})
	req.NoError(err)

	w := get(r, "/get-messages?user1=bob&user2=alice")
	req.Equal(http.StatusOK, w.Code)

	var got []map[string]any
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Len(got, 2)
	req.Equal("hi", got[0]["body"])
	req.Equal("hey", got[1]["body"])
	req.Contains(got[0], "expiresAt")
	req.Nil(got[0]["expiresAt"])
}

func TestGetMessages_EmptyConversationIsEmptyArray(t *testing.T) {
	req := require.New(t)
	r, _, _ := setup(t)

	w := get(r, "/get-messages?user1=alice&user2=bob")
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[]`, w.Body.String())
}

func TestGetMessages_Errors(t *testing.T) {
	req := require.New(t)
	r, store, _ := setup(t)

	w := get(r, "/get-messages?user1=alice")
	req.Equal(http.StatusBadRequest, w.Code)
	req.Contains(w.Body.String(), "user2")

	store.FailWith(apperr.Storage("history", errors.New("boom")))
	w = get(r, "/get-messages?user1=alice&user2=bob")
	req.Equal(http.StatusServiceUnavailable, w.Code)
	req.NotContains(w.Body.String(), "boom")
}
