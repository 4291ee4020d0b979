package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingConn 記錄收到的事件
type recordingConn struct {
	id     string
	mu     sync.Mutex
	events []Outbound
	full   bool
}

func newConn(id string) *recordingConn { return &recordingConn{id: id} }

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(out Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.events = append(c.events, out)
	return true
}

func (c *recordingConn) received() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outbound(nil), c.events...)
}

func (c *recordingConn) named(event string) []Outbound {
	var out []Outbound
	for _, e := range c.received() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	return raw
}
