package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"chat-relay/internal/platform/logger"
	"chat-relay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// FrameRouter 處理入站事件框的路由.
type FrameRouter interface {
	HandleFrame(ctx context.Context, from relay.Conn, raw []byte)
	Leave(conn relay.Conn)
}

// Handler WebSocket 端點.
type Handler struct {
	router   FrameRouter
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler 創建 WebSocket 端點，allowedOrigins 為空或含 "*" 時允許所有來源.
func NewHandler(router FrameRouter, opts Options, allowedOrigins []string) *Handler {
	return &Handler{
		router: router,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeWS 升級連線並在 handler goroutine 中執行讀迴圈，連線結束時才返回.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warning(c.Request.Context(), "WebSocket 升級失敗",
			logger.WithError(err))
		return
	}

	client := NewClient(conn, h.opts)
	ctx := logger.WithTraceID(context.WithoutCancel(c.Request.Context()), client.ID())
	logger.Info(ctx, "WebSocket 連線建立",
		logger.WithConnID(client.ID()),
		logger.WithDetails(map[string]interface{}{"ip": c.ClientIP()}))

	go client.WritePump()
	client.ReadPump(func(raw []byte) {
		h.router.HandleFrame(ctx, client, raw)
	})

	h.router.Leave(client)
	logger.Info(ctx, "WebSocket 連線關閉", logger.WithConnID(client.ID()))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 非瀏覽器客戶端
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
