package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-relay/internal/storage/database/message"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MessageStore 記憶體訊息存儲，行為與 MongoDB 實作一致.
type MessageStore struct {
	mu    sync.RWMutex
	rows  map[bson.ObjectID]*row
	seq   uint64
	clock clockwork.Clock
	fail  error
}

type row struct {
	msg message.Message
	seq uint64
}

var _ message.Repository = (*MessageStore)(nil)

// NewMessageStore 創建記憶體訊息存儲.
func NewMessageStore(clock clockwork.Clock) *MessageStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MessageStore{
		rows:  make(map[bson.ObjectID]*row),
		clock: clock,
	}
}

// FailWith 讓後續所有操作回傳 err，傳 nil 恢復正常.
func (s *MessageStore) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Insert 寫入訊息.
func (s *MessageStore) Insert(_ context.Context, msg *message.Message) (string, error) {
	if err := message.Prepare(msg, s.clock.Now()); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}

	msg.ID = bson.NewObjectID()
	s.seq++
	s.rows[msg.ID] = &row{msg: clone(msg), seq: s.seq}
	return msg.ID.Hex(), nil
}

// History 取得兩人之間的對話紀錄.
func (s *MessageStore) History(_ context.Context, a, b string) ([]*message.Message, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}

	matched := make([]*row, 0)
	for _, r := range s.rows {
		if r.msg.Involves(a, b) && !r.msg.Expired(now) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		ci, cj := matched[i].msg.CreatedAt, matched[j].msg.CreatedAt
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return matched[i].seq < matched[j].seq
	})

	out := make([]*message.Message, 0, len(matched))
	for _, r := range matched {
		m := clone(&r.msg)
		out = append(out, &m)
	}
	return out, nil
}

// DeleteByID 刪除單則訊息.
func (s *MessageStore) DeleteByID(_ context.Context, id string) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	if err != nil {
		return false, nil
	}

	if _, ok := s.rows[objectID]; !ok {
		return false, nil
	}
	delete(s.rows, objectID)
	return true, nil
}

// DeleteBetween 刪除兩人之間雙向的所有訊息.
func (s *MessageStore) DeleteBetween(_ context.Context, a, b string) (int64, error) {
	return s.deleteWhere(func(m *message.Message) bool { return m.Involves(a, b) })
}

// DeleteExpiredBefore 刪除過期時間早於 now 的訊息.
func (s *MessageStore) DeleteExpiredBefore(_ context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(m *message.Message) bool { return m.Expired(now) })
}

// Len 目前保存的訊息數.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MessageStore) deleteWhere(match func(*message.Message) bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}

	var n int64
	for id, r := range s.rows {
		if match(&r.msg) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func clone(m *message.Message) message.Message {
	c := *m
	if m.ExpiresAt != nil {
		exp := *m.ExpiresAt
		c.ExpiresAt = &exp
	}
	return c
}
