package middleware

import (
	"context"

	"chat-relay/internal/security/audit"

	"github.com/gin-gonic/gin"
)

// RequestMetadata 請求來源資訊，審計與限流都以此為準
type RequestMetadata struct {
	IPAddress string
	UserAgent string
	// Handle 查詢字串中的 username，只用於日誌，未經驗證
	Handle string
}

type metadataKey struct{}

const unknown = "unknown"

// RequestMetadataMiddleware 把來源資訊放進 request context，審計事件從這裡補上 IP 與 UA
func RequestMetadataMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := &RequestMetadata{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Handle:    c.Query("username"),
		}
		if meta.IPAddress == "" {
			meta.IPAddress = unknown
		}

		ctx := context.WithValue(c.Request.Context(), metadataKey{}, meta)
		ctx = audit.WithClient(ctx, meta.IPAddress, meta.UserAgent)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestMetadata 取得請求來源資訊，不在 HTTP 請求中時回傳 unknown
func GetRequestMetadata(ctx context.Context) *RequestMetadata {
	if meta, ok := ctx.Value(metadataKey{}).(*RequestMetadata); ok {
		return meta
	}
	return &RequestMetadata{IPAddress: unknown, UserAgent: unknown}
}
