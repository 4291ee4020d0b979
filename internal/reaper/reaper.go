// Package reaper 定期清除已過期的訊息.
package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-relay/internal/platform/logger"

	"github.com/jonboulle/clockwork"
)

const (
	defaultInterval = 60 * time.Second
	defaultTimeout  = 30 * time.Second
)

// Purger 刪除過期訊息的存儲.
type Purger interface {
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}

// Stats 最近一次執行結果.
type Stats struct {
	Runs         int64     `json:"runs"`
	LastRun      time.Time `json:"last_run"`
	LastRemoved  int64     `json:"last_removed"`
	TotalRemoved int64     `json:"total_removed"`
	LastError    string    `json:"last_error,omitempty"`
	Running      bool      `json:"running"`
}

// Reaper 以固定間隔執行過期清理，可被取消.
type Reaper struct {
	store    Purger
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	stats   Stats
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Option Reaper 選項.
type Option func(*Reaper)

// WithClock 設定時鐘.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Reaper) { r.clock = clock }
}

// WithInterval 設定執行間隔.
func WithInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithTimeout 設定單次執行逾時.
func WithTimeout(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New 創建 Reaper.
func New(store Purger, opts ...Option) *Reaper {
	r := &Reaper{
		store:    store,
		clock:    clockwork.NewRealClock(),
		interval: defaultInterval,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 啟動背景清理，重複呼叫無效果.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.stats.Running = true

	// 在呼叫端 goroutine 建立 ticker，測試可以用 BlockUntilContext 等待
	ticker := r.clock.NewTicker(r.interval)
	go r.loop(ctx, ticker)

	logger.Info(ctx, "過期訊息清理已啟動",
		logger.WithAction("reaper_start"),
		logger.WithDetails(map[string]interface{}{"interval": r.interval.String()}))
}

// Stop 停止背景清理並等待目前的執行結束.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce 執行一次清理，回傳刪除數量.
func (r *Reaper) RunOnce(ctx context.Context) (removed int64, err error) {
	now := r.clock.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reaper panic: %v", rec)
		}
		r.record(now, removed, err)
	}()

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.store.DeleteExpiredBefore(tctx, now)
}

// Stats 回傳統計快照.
func (r *Reaper) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Interval 執行間隔.
func (r *Reaper) Interval() time.Duration {
	return r.interval
}

func (r *Reaper) loop(ctx context.Context, ticker clockwork.Ticker) {
	defer close(r.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.stats.Running = false
			r.mu.Unlock()
			logger.Info(context.Background(), "過期訊息清理已停止", logger.WithAction("reaper_stop"))
			return
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	removed, err := r.RunOnce(ctx)
	if err != nil {
		// 下一次 tick 會重試
		logger.Error(ctx, "過期訊息清理失敗",
			logger.WithAction("reaper_tick"),
			logger.WithError(err))
		return
	}
	if removed > 0 {
		logger.Info(ctx, "已清除過期訊息",
			logger.WithAction("reaper_tick"),
			logger.WithDetails(map[string]interface{}{"removed": removed}))
	}
}

func (r *Reaper) record(at time.Time, removed int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Runs++
	r.stats.LastRun = at
	r.stats.LastRemoved = removed
	r.stats.TotalRemoved += removed
	r.stats.LastError = ""
	if err != nil {
		r.stats.LastError = err.Error()
	}
}
