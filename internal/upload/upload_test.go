package upload_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"chat-relay/internal/storage/blob"
	"chat-relay/internal/upload"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*gin.Engine, *blob.LocalStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := blob.NewLocalStore(blob.LocalConfig{
		BasePath:  t.TempDir(),
		URLPrefix: "/uploads/",
		MaxSize:   64,
	})
	require.NoError(t, err)

	r := gin.New()
	r.POST("/upload", upload.NewUploadHandler(store).Upload)
	return r, store
}

func post(t *testing.T, r http.Handler, field, name string, content []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestUpload(t *testing.T) {
	req := require.New(t)
	r, store := newEngine(t)

	w, out := post(t, r, upload.FileField, "note.txt", []byte("hello"))
	req.Equal(http.StatusOK, w.Code)
	req.Equal(true, out["success"])

	url := out["url"].(string)
	req.True(strings.HasPrefix(url, "/uploads/FILE-"))
	req.True(strings.HasSuffix(url, ".txt"))

	path, ok := store.Path(url)
	req.True(ok)
	data, err := os.ReadFile(path)
	req.NoError(err)
	req.Equal("hello", string(data))
}

func TestUpload_Errors(t *testing.T) {
	req := require.New(t)
	r, _ := newEngine(t)

	w, out := post(t, r, "other", "note.txt", []byte("hello"))
	req.Equal(http.StatusBadRequest, w.Code)
	req.Equal(false, out["success"])

	w, out = post(t, r, upload.FileField, "big.bin", bytes.Repeat([]byte("x"), 65))
	req.Equal(http.StatusRequestEntityTooLarge, w.Code)
	req.Equal("File too large", out["msg"])
}
