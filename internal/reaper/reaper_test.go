package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-relay/internal/apperr"
	"chat-relay/internal/storage/database/message"
	"chat-relay/internal/storage/memory"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// scriptedPurger 依序回傳預先設定的結果
type scriptedPurger struct {
	mu    sync.Mutex
	steps []func() (int64, error)
	calls []time.Time
}

func (p *scriptedPurger) DeleteExpiredBefore(_ context.Context, now time.Time) (int64, error) {
	p.mu.Lock()
	p.calls = append(p.calls, now)
	var step func() (int64, error)
	if len(p.steps) > 0 {
		step, p.steps = p.steps[0], p.steps[1:]
	}
	p.mu.Unlock()

	if step == nil {
		return 0, nil
	}
	return step()
}

func (p *scriptedPurger) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func waitForRuns(t *testing.T, r *Reaper, n int64) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Stats().Runs >= n }, 2*time.Second, 5*time.Millisecond)
}

func TestReaper_RunOnceRemovesOnlyExpired(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	t0 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(t0)
	store := memory.NewMessageStore(clock)

	past := t0.Add(-time.Second)
	future := t0.Add(time.Hour)
	for _, exp := range []*time.Time{&past, &future, nil} {
		_, err := store.Insert(ctx, &message.Message{Sender: "a", Receiver: "b", ExpiresAt: exp})
		req.NoError(err)
	}

	r := New(store, WithClock(clock))
	removed, err := r.RunOnce(ctx)

	req.NoError(err)
	req.Equal(int64(1), removed)
	req.Equal(2, store.Len())

	stats := r.Stats()
	req.Equal(int64(1), stats.Runs)
	req.Equal(t0, stats.LastRun)
	req.Equal(int64(1), stats.TotalRemoved)
	req.Empty(stats.LastError)
}

func TestReaper_TicksOnInterval(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	t0 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(t0)
	store := memory.NewMessageStore(clock)

	exp := t0.Add(30 * time.Second)
	_, err := store.Insert(ctx, &message.Message{Sender: "a", Receiver: "b", ExpiresAt: &exp})
	req.NoError(err)

	r := New(store, WithClock(clock), WithInterval(time.Minute))
	r.Start(ctx)
	defer r.Stop()

	req.NoError(clock.BlockUntilContext(ctx, 1))
	req.Equal(1, store.Len())

	clock.Advance(time.Minute)
	waitForRuns(t, r, 1)

	req.Zero(store.Len())
	req.Equal(int64(1), r.Stats().LastRemoved)
	req.True(r.Stats().Running)
}

func TestReaper_ErrorsAndPanicsDoNotStopLoop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	purger := &scriptedPurger{steps: []func() (int64, error){
		func() (int64, error) { return 0, apperr.Storage("delete expired", errors.New("timeout")) },
		func() (int64, error) { panic("boom") },
		func() (int64, error) { return 3, nil },
	}}

	r := New(purger, WithClock(clock), WithInterval(time.Minute))
	r.Start(ctx)
	defer r.Stop()
	req.NoError(clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Minute)
	waitForRuns(t, r, 1)
	req.Contains(r.Stats().LastError, "storage unavailable")

	clock.Advance(time.Minute)
	waitForRuns(t, r, 2)
	req.Contains(r.Stats().LastError, "panic")

	clock.Advance(time.Minute)
	waitForRuns(t, r, 3)
	stats := r.Stats()
	req.Empty(stats.LastError)
	req.Equal(int64(3), stats.LastRemoved)
	req.Equal(3, purger.callCount())
}

func TestReaper_StopEndsLoop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	purger := &scriptedPurger{}

	r := New(purger, WithClock(clock), WithInterval(time.Minute))
	r.Start(ctx)
	r.Start(ctx) // 第二次呼叫不會啟動新的迴圈
	req.NoError(clock.BlockUntilContext(ctx, 1))

	r.Stop()
	req.False(r.Stats().Running)

	clock.Advance(10 * time.Minute)
	req.Zero(purger.callCount())

	// 重複停止不會卡住
	r.Stop()
}

func TestReaper_StopWithoutStart(t *testing.T) {
	New(&scriptedPurger{}).Stop()
}

func TestReaper_ParentContextCancelStopsLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(&scriptedPurger{}, WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	cancel()
	require.Eventually(t, func() bool { return !r.Stats().Running }, time.Second, 5*time.Millisecond)
	r.Stop()
}
