package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chat-relay/internal/platform/config"
	"chat-relay/internal/relay"
	"chat-relay/internal/storage/blob"
	"chat-relay/internal/storage/database"
	"chat-relay/internal/storage/memory"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
	if mutate != nil {
		mutate(cfg)
	}

	clock := clockwork.NewFakeClock()
	dir := t.TempDir()
	blobs, err := blob.NewLocalStore(blob.LocalConfig{BasePath: dir, URLPrefix: "/uploads/", Clock: clock})
	require.NoError(t, err)

	messages := memory.NewMessageStore(clock)
	registry := relay.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := Router(ctx, Deps{
		Config: cfg,
		Repos: &database.Repositories{
			Driver:   config.DriverMemory,
			Messages: messages,
			Users:    memory.NewUserStore(clock),
		},
		Blobs: blobs,
		Relay: relay.NewRouter(messages, registry, relay.WithClock(clock)),
		Clock: clock,
	})
	return r, dir
}

func do(r http.Handler, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthAndSecurityHeaders(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, nil)

	w := do(r, http.MethodGet, "/health", nil, nil)
	req.Equal(http.StatusOK, w.Code)
	req.Equal("DENY", w.Header().Get("X-Frame-Options"))
	req.Equal("nosniff", w.Header().Get("X-Content-Type-Options"))
	req.NotEmpty(w.Header().Get("X-Request-ID"))

	var body map[string]any
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal("healthy", body["status"])
}

func TestRouter_CORS(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, nil)

	w := do(r, http.MethodOptions, "/login", nil, map[string]string{"Origin": "http://localhost:3000"})
	req.Equal(http.StatusNoContent, w.Code)
	req.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(r, http.MethodOptions, "/login", nil, map[string]string{"Origin": "http://evil.example"})
	req.Equal(http.StatusNoContent, w.Code)
	req.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RegisterLoginAndHistory(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, nil)

	creds := []byte(`{"username":"alice","password":"pw"}`)
	w := do(r, http.MethodPost, "/register", creds, map[string]string{"Content-Type": "application/json"})
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), "Registered!")

	w = do(r, http.MethodPost, "/login", creds, map[string]string{"Content-Type": "application/json"})
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"username":"alice"`)

	w = do(r, http.MethodGet, "/get-messages?user1=alice&user2=bob", nil, nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[]`, w.Body.String())

	w = do(r, http.MethodGet, "/search-user", nil, nil)
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestRouter_ServesUploads(t *testing.T) {
	req := require.New(t)
	r, dir := newTestRouter(t, nil)

	req.NoError(os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	w := do(r, http.MethodGet, "/uploads/a.txt", nil, nil)
	req.Equal(http.StatusOK, w.Code)
	req.Equal("hello", w.Body.String())
}

func TestRouter_AccountRateLimit(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, func(cfg *config.Config) {
		cfg.Limits.RateLimiting = config.RateLimitingConfig{
			Enabled:          true,
			DefaultPerMinute: 100,
			AccountPerMin:    2,
		}
	})

	creds := []byte(`{"username":"bob","password":"wrong"}`)
	header := map[string]string{"Content-Type": "application/json"}

	// Given: 帳號端點每分鐘 2 次
	for i := 0; i < 2; i++ {
		w := do(r, http.MethodPost, "/login", creds, header)
		req.NotEqual(http.StatusTooManyRequests, w.Code)
	}

	// Then: 第三次被拒絕，其他端點不受影響
	w := do(r, http.MethodPost, "/login", creds, header)
	req.Equal(http.StatusTooManyRequests, w.Code)

	w = do(r, http.MethodGet, "/health", nil, nil)
	req.Equal(http.StatusOK, w.Code)
}

func TestServer_New(t *testing.T) {
	req := require.New(t)
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: "0", Timeout: 5}}

	srv, err := New(cfg, gin.New())
	req.NoError(err)
	req.Equal("127.0.0.1:0", srv.http.Addr)
	req.Equal(5*time.Second, srv.http.ReadHeaderTimeout)
	req.Nil(srv.tls)

	cfg.Security.TLS = config.TLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"}
	_, err = New(cfg, gin.New())
	req.Error(err)
}
