package blob

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// 最小的 PNG 檔頭
var pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52}

func newStore(t *testing.T, maxSize int64) (*LocalStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1700000000123))
	store, err := NewLocalStore(LocalConfig{
		BasePath:  t.TempDir(),
		URLPrefix: "/uploads",
		MaxSize:   maxSize,
		Clock:     clock,
	})
	require.NoError(t, err)
	return store, clock
}

func TestLocalStore_StoreKeepsOriginalExtension(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t, 0)

	url, err := store.Store(context.Background(), strings.NewReader("hello"), "notes.TXT")
	req.NoError(err)
	req.Regexp(regexp.MustCompile(`^/uploads/FILE-1700000000123-[0-9a-f]{8}\.txt$`), url)

	path, ok := store.Path(url)
	req.True(ok)
	content, err := os.ReadFile(path)
	req.NoError(err)
	req.Equal("hello", string(content))
}

func TestLocalStore_StoreSniffsMissingExtension(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t, 0)

	url, err := store.Store(context.Background(), bytes.NewReader(pngHeader), "blob")
	req.NoError(err)
	req.True(strings.HasSuffix(url, ".png"), url)
}

func TestLocalStore_StoreRejectsOversizedPayload(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t, 8)

	_, err := store.Store(context.Background(), strings.NewReader("0123456789"), "a.txt")
	req.ErrorIs(err, ErrTooLarge)

	// 失敗時不留下暫存檔或目標檔
	entries, err := os.ReadDir(store.BasePath())
	req.NoError(err)
	req.Empty(entries)

	_, err = store.Store(context.Background(), strings.NewReader("01234567"), "a.txt")
	req.NoError(err)
}

func TestLocalStore_NamesAreUnique(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t, 0)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		url, err := store.Store(context.Background(), strings.NewReader("x"), "x.bin")
		req.NoError(err)
		req.False(seen[url])
		seen[url] = true
	}
}

func TestLocalStore_PathRejectsForeignURLs(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t, 0)

	_, ok := store.Path("/elsewhere/FILE-1.png")
	req.False(ok)
	_, ok = store.Path("/uploads/../secret")
	req.False(ok)

	path, ok := store.Path("/uploads/FILE-1.png")
	req.True(ok)
	req.Equal(filepath.Join(store.BasePath(), "FILE-1.png"), path)
}

func TestKindOf(t *testing.T) {
	req := require.New(t)

	req.Equal("image", KindOf(pngHeader))
	req.Equal("file", KindOf([]byte("plain text")))
}
