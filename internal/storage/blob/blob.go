// Package blob 保存上傳的檔案並回傳可供下載的 URL.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrTooLarge 檔案超過大小上限.
var ErrTooLarge = errors.New("file exceeds maximum size")

// Store 檔案存儲接口，回傳的 URL 對核心而言是不透明的附件參照.
type Store interface {
	Store(ctx context.Context, r io.Reader, originalName string) (string, error)
}
