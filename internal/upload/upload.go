package upload

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"chat-relay/internal/apperr"
	"chat-relay/internal/httputil"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/storage/blob"

	"github.com/gin-gonic/gin"
)

// FileField 上傳檔案的表單欄位.
const FileField = "myFile"

// UploadHandler 檔案上傳處理器.
type UploadHandler struct {
	blobs blob.Store
}

// NewUploadHandler 創建上傳處理器.
func NewUploadHandler(blobs blob.Store) *UploadHandler {
	return &UploadHandler{blobs: blobs}
}

// Upload 保存 myFile 並回傳可當作附件參照的 URL.
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile(FileField)
	if err != nil {
		httputil.FromError(c, apperr.Validation(FileField, "is required"))
		return
	}

	ctx := c.Request.Context()
	url, err := Save(ctx, h.blobs, fileHeader)
	if err != nil {
		RespondError(c, err)
		return
	}

	logger.Info(ctx, "檔案上傳成功",
		logger.WithAction("upload"),
		logger.WithDetails(map[string]interface{}{"url": url, "size": fileHeader.Size}))

	httputil.OK(c, gin.H{"url": url})
}

// Save 把 multipart 檔案寫入 blob store.
func Save(ctx context.Context, store blob.Store, fileHeader *multipart.FileHeader) (string, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	return store.Store(ctx, f, fileHeader.Filename)
}

// RespondError 回應上傳失敗.
func RespondError(c *gin.Context, err error) {
	if errors.Is(err, blob.ErrTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"msg":     httputil.FileTooLarge,
		})
		return
	}
	httputil.SafeError(c, http.StatusInternalServerError, err, httputil.ProcessingFailed)
}
