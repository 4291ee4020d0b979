package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditService_DisabledWritesNothing(t *testing.T) {
	var n int
	svc := NewRecorder(func(context.Context, AuditEvent) { n++ })
	svc.enabled = false

	svc.LogMessageSent(context.Background(), "alice", "bob", "id", "text", nil)
	svc.LogChatCleared(context.Background(), "alice", "bob", 3)

	require.Zero(t, n)

	var nilSvc *AuditService
	require.False(t, nilSvc.IsEnabled())
}

func TestAuditService_EnrichesWithClient(t *testing.T) {
	req := require.New(t)
	var got []AuditEvent
	svc := NewRecorder(func(_ context.Context, e AuditEvent) { got = append(got, e) })

	ctx := WithClient(context.Background(), "10.0.0.1", "test-agent")
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.LogMessageSent(ctx, "alice", "bob", "abc", "text", &exp)
	svc.LogMessageDeleted(ctx, "alice", "bob", "abc", false)

	req.Len(got, 2)
	req.Equal("message_sent", got[0].EventType)
	req.Equal("alice", got[0].Handle)
	req.Equal("bob", got[0].Peer)
	req.Equal("10.0.0.1", got[0].IPAddress)
	req.Equal("test-agent", got[0].UserAgent)
	req.Equal("2026-01-01T00:00:00Z", got[0].Details["expires_at"])
	req.Equal("message_deleted", got[1].EventType)
	req.Equal(false, got[1].Details["existed"])
	req.False(got[1].Timestamp.IsZero())
}
