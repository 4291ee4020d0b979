package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// 用於判斷 MIME 類型的前綴長度
const sniffLen = 3072

// LocalStore 本地檔案系統存儲.
type LocalStore struct {
	basePath  string
	urlPrefix string
	maxSize   int64
	clock     clockwork.Clock
}

var _ Store = (*LocalStore)(nil)

// LocalConfig 本地存儲配置.
type LocalConfig struct {
	BasePath  string
	URLPrefix string
	MaxSize   int64 // bytes，<= 0 表示不限制
	Clock     clockwork.Clock
}

// NewLocalStore 創建本地存儲，必要時建立目錄.
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	prefix := cfg.URLPrefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &LocalStore{
		basePath:  absPath,
		urlPrefix: prefix,
		maxSize:   cfg.MaxSize,
		clock:     clock,
	}, nil
}

// Store 以原子方式寫入檔案，回傳 URL.
func (s *LocalStore) Store(ctx context.Context, r io.Reader, originalName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	head = head[:n]

	name := s.objectName(originalName, head)
	path := filepath.Join(s.basePath, name)

	tmpFile, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.maxSize > 0 {
		src = io.LimitReader(src, s.maxSize+1)
	}

	written, err := io.Copy(tmpFile, src)
	if err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if s.maxSize > 0 && written > s.maxSize {
		return "", ErrTooLarge
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return s.urlPrefix + name, nil
}

// Path 回傳 URL 對應的本地檔案路徑，URL 不屬於此存儲時回傳 false.
func (s *LocalStore) Path(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, s.urlPrefix)
	if !ok || name == "" || name != filepath.Base(name) {
		return "", false
	}
	return filepath.Join(s.basePath, name), true
}

// BasePath 存儲根目錄.
func (s *LocalStore) BasePath() string {
	return s.basePath
}

// objectName 產生 FILE-<unix-ms>-<8 hex><ext>.
func (s *LocalStore) objectName(originalName string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if !validExt(ext) {
		ext = mimetype.Detect(head).Extension()
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("FILE-%d-%s%s", s.clock.Now().UnixMilli(), suffix, ext)
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 16 {
		return false
	}
	for _, c := range ext[1:] {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
