package middleware

import (
	"fmt"
	"net/http"
	"time"

	"chat-relay/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

// AccessLog 每個請求一行 httpRequest 日誌；quiet 中的路徑（例如 /health）只在 DEBUG 記錄
func AccessLog(quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := &logger.HTTPRequest{
			RequestMethod: c.Request.Method,
			RequestURL:    c.Request.URL.Path,
			Status:        status,
			ResponseSize:  int64(c.Writer.Size()),
			UserAgent:     c.Request.UserAgent(),
			RemoteIP:      c.ClientIP(),
			Latency:       fmt.Sprintf("%.3fs", time.Since(start).Seconds()),
			Protocol:      c.Request.Proto,
		}

		ctx := c.Request.Context()
		msg := c.Request.Method + " " + c.Request.URL.Path
		opts := []logger.LogOption{logger.WithHTTPRequest(entry), logger.WithAction("http_request")}
		if handle := GetRequestMetadata(ctx).Handle; handle != "" {
			opts = append(opts, logger.WithHandle(handle))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, msg, opts...)
		case skip[c.FullPath()]:
			logger.Debug(ctx, msg, opts...)
		case status >= http.StatusBadRequest:
			logger.Warning(ctx, msg, opts...)
		default:
			logger.Info(ctx, msg, opts...)
		}
	}
}
