package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/relay"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options 單條連線的讀寫參數.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// OptionsFromConfig 由配置轉換連線參數.
func OptionsFromConfig(cfg config.RealtimeConfig) Options {
	return Options{
		WriteWait:      config.Duration(cfg.WriteWaitSeconds),
		PongWait:       config.Duration(cfg.PongWaitSeconds),
		PingInterval:   config.Duration(cfg.PingIntervalSeconds),
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
	}
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Client 一條 WebSocket 連線.
//
// send 永不關閉，寫端以 done 判斷連線是否結束.
type Client struct {
	id   string
	conn *websocket.Conn
	opts Options
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient 包裝已升級的連線.
func NewClient(conn *websocket.Conn, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:   uuid.New().String(),
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// ID 連線 ID.
func (c *Client) ID() string { return c.id }

// Done 連線結束時關閉.
func (c *Client) Done() <-chan struct{} { return c.done }

// Send 非阻塞地排入一個事件，連線已關閉或佇列已滿時回傳 false.
func (c *Client) Send(out relay.Outbound) bool {
	data, err := json.Marshal(out)
	if err != nil {
		logger.Error(context.Background(), "序列化事件失敗",
			logger.WithConnID(c.id),
			logger.WithAction(out.Event),
			logger.WithError(err))
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		logger.Warning(context.Background(), "發送佇列已滿，丟棄事件",
			logger.WithConnID(c.id),
			logger.WithAction(out.Event))
		return false
	}
}

// Close 結束連線，可重複呼叫.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ReadPump 依序讀取事件框交給 handle，直到連線中斷.
func (c *Client) ReadPump(handle func(raw []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warning(context.Background(), "WebSocket 連線異常中斷",
					logger.WithConnID(c.id),
					logger.WithError(err))
			}
			return
		}
		handle(raw)
	}
}

// WritePump 把佇列中的事件寫到連線，並定時發送 ping.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
