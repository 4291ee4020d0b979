package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-relay/internal/platform/logger"
	"chat-relay/internal/security/audit"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.10:4567"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPerEndpointRateLimiter(t *testing.T) {
	req := require.New(t)
	clock := clockwork.NewFakeClock()

	var (
		mu     sync.Mutex
		events []audit.AuditEvent
	)
	rec := audit.NewRecorder(func(_ context.Context, e audit.AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	limiter := NewPerEndpointRateLimiter(3, time.Minute, rec, clock)
	limiter.SetLimit("/login", 1, time.Minute)

	r := gin.New()
	r.Use(limiter.Middleware())
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/get-messages", func(c *gin.Context) { c.Status(http.StatusOK) })

	req.Equal(http.StatusOK, serve(r, http.MethodPost, "/login", nil).Code)
	req.Equal(http.StatusTooManyRequests, serve(r, http.MethodPost, "/login", nil).Code)

	// 其他端點走預設配額
	for i := 0; i < 3; i++ {
		req.Equal(http.StatusOK, serve(r, http.MethodGet, "/get-messages", nil).Code)
	}
	req.Equal(http.StatusTooManyRequests, serve(r, http.MethodGet, "/get-messages", nil).Code)

	clock.Advance(time.Minute + time.Second)
	req.Equal(http.StatusOK, serve(r, http.MethodPost, "/login", nil).Code)

	mu.Lock()
	defer mu.Unlock()
	req.Len(events, 2)
	req.Equal("rate_limit", events[0].EventType)
	req.Equal("/login", events[0].Details["endpoint"])
}

func TestWSConnectionLimiter(t *testing.T) {
	req := require.New(t)
	clock := clockwork.NewFakeClock()
	limiter := NewWSConnectionLimiter(1, time.Second, 10, nil, clock)

	entered := make(chan struct{})
	hold := make(chan struct{})

	r := gin.New()
	r.GET("/ws", limiter.Middleware(), func(c *gin.Context) {
		if c.Query("hold") != "" {
			close(entered)
			<-hold
		}
		c.Status(http.StatusOK)
	})

	done := make(chan int)
	go func() {
		done <- serve(r, http.MethodGet, "/ws?hold=1", nil).Code
	}()
	<-entered

	req.Equal(1, limiter.Stats()["total_connections"])

	// Given 同一 IP 已有一條長連線
	clock.Advance(2 * time.Second)
	// Then 第二條連線被拒絕
	req.Equal(http.StatusTooManyRequests, serve(r, http.MethodGet, "/ws", nil).Code)

	close(hold)
	req.Equal(http.StatusOK, <-done)
	req.Equal(0, limiter.Stats()["total_connections"])

	// 連線間隔過短
	req.Equal(http.StatusOK, serve(r, http.MethodGet, "/ws", nil).Code)
	req.Equal(http.StatusTooManyRequests, serve(r, http.MethodGet, "/ws", nil).Code)
	clock.Advance(2 * time.Second)
	req.Equal(http.StatusOK, serve(r, http.MethodGet, "/ws", nil).Code)
}

func TestRequireHandleQuery(t *testing.T) {
	req := require.New(t)

	r := gin.New()
	r.GET("/get-messages", RequireHandleQuery("sender", "receiver"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req.Equal(http.StatusOK, serve(r, http.MethodGet, "/get-messages?sender=alice&receiver=bob", nil).Code)

	w := serve(r, http.MethodGet, "/get-messages?sender=alice", nil)
	req.Equal(http.StatusBadRequest, w.Code)
	req.Contains(w.Body.String(), "receiver")
	req.Contains(w.Body.String(), `"error":"validation"`)

	req.Equal(http.StatusBadRequest, serve(r, http.MethodGet, "/get-messages?sender=%24where&receiver=bob", nil).Code)
}

func TestRequestSizeLimiter(t *testing.T) {
	req := require.New(t)

	r := gin.New()
	r.POST("/upload", RequestSizeLimiter(8), func(c *gin.Context) { c.Status(http.StatusOK) })

	small := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("1234"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, small)
	req.Equal(http.StatusOK, w.Code)

	large := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("0123456789"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, large)
	req.Equal(http.StatusRequestEntityTooLarge, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	req := require.New(t)

	var trace string
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		trace = logger.GetTraceID(c.Request.Context())
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := serve(r, http.MethodGet, "/", map[string]string{RequestIDHeader: "req-123"})
	req.Equal("req-123", w.Header().Get(RequestIDHeader))
	req.Equal("req-123", w.Body.String())
	req.True(strings.HasSuffix(trace, "/traces/req-123"))

	w = serve(r, http.MethodGet, "/", nil)
	req.Len(w.Header().Get(RequestIDHeader), 36)
}

func TestRequestMetadataMiddleware(t *testing.T) {
	req := require.New(t)

	var meta *RequestMetadata
	r := gin.New()
	r.Use(RequestMetadataMiddleware())
	r.GET("/", func(c *gin.Context) {
		meta = GetRequestMetadata(c.Request.Context())
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/?username=alice", map[string]string{
		"X-Forwarded-For": "203.0.113.5, 10.0.0.1",
		"User-Agent":      "test-agent",
	})
	req.Equal("203.0.113.5", meta.IPAddress)
	req.Equal("test-agent", meta.UserAgent)
	req.Equal("alice", meta.Handle)

	req.Equal("unknown", GetRequestMetadata(context.Background()).IPAddress)
}

func TestSanitizeText(t *testing.T) {
	require.Equal(t, "hello\nworld\t!", SanitizeText("he\x00llo\nwor\x07ld\t!"))
	require.Equal(t, "你好", SanitizeText("你\x1b好"))
}

func TestGRPCUnaryInterceptor(t *testing.T) {
	req := require.New(t)
	interceptor := GRPCUnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "probe-1"))
	resp, err := interceptor(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		return logger.GetTraceID(ctx), nil
	})
	req.NoError(err)
	req.True(strings.HasSuffix(resp.(string), "/traces/probe-1"))

	_, err = interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	req.Equal(codes.Internal, status.Code(err))
}

func TestMatchesPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"/upload", "/upload", true},
		{"/upload/x", "/upload", true},
		{"/uploads/a.png", "/upload", false},
		{"/uploads/a.png", "/uploads/", true},
		{"/login", "/register", false},
	}
	for _, tt := range tests {
		t.Run(tt.path+"|"+tt.prefix, func(t *testing.T) {
			require.Equal(t, tt.want, matchesPrefix(tt.path, tt.prefix))
		})
	}
}

func TestRequestIDMiddleware_RejectsUnsafeID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/", map[string]string{RequestIDHeader: "bad id\twith spaces"})
	require.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestAccessLog(t *testing.T) {
	req := require.New(t)

	var buf strings.Builder
	var mu sync.Mutex
	restore := logger.SetOutput(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))
	defer restore()

	r := gin.New()
	r.Use(RequestMetadataMiddleware(), AccessLog("/health"))
	r.GET("/search-user", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(r, http.MethodGet, "/search-user?username=alice", nil)

	mu.Lock()
	defer mu.Unlock()
	line := buf.String()
	req.Contains(line, `"severity":"WARNING"`)
	req.Contains(line, `"requestUrl":"/search-user"`)
	req.Contains(line, `"status":404`)
	req.Contains(line, `"handle":"alice"`)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
