package httputil

import (
	"fmt"
	"net/http"
	"strings"

	"chat-relay/internal/apperr"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// FromError 依錯誤分類回應，真實錯誤只寫進日誌
func FromError(c *gin.Context, err error) {
	status := StatusFor(err)
	code := apperr.Code(err)

	if status >= http.StatusInternalServerError {
		SafeError(c, status, err, apperr.PublicMessage(err))
		return
	}

	logger.Warning(c.Request.Context(), fmt.Sprintf("API request rejected: %v", err),
		logger.WithAction(code),
		logger.WithDetails(map[string]interface{}{
			"path":   c.Request.URL.Path,
			"status": status,
		}))

	c.JSON(status, gin.H{
		"success":    false,
		"msg":        apperr.PublicMessage(err),
		"error":      code,
		"request_id": middleware.GetRequestID(c),
	})
}

// SafeError 安全的錯誤響應（不洩露內部信息）
func SafeError(c *gin.Context, statusCode int, err error, userMessage string) {
	requestID := middleware.GetRequestID(c)

	// 記錄真實錯誤到日誌
	logger.Error(c.Request.Context(), fmt.Sprintf("API Error: %v", err),
		logger.WithDetails(map[string]interface{}{
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"status":     statusCode,
		}))

	message := userMessage
	if shouldShowError(err) {
		message = err.Error()
	}

	c.JSON(statusCode, gin.H{
		"success":    false,
		"msg":        message,
		"error":      apperr.Code(err),
		"request_id": requestID,
	})
}

// shouldShowError 判斷是否可以向用戶顯示錯誤詳情
func shouldShowError(err error) bool {
	if err == nil {
		return false
	}

	// 不應顯示的錯誤關鍵字（可能洩露敏感信息）
	dangerousKeywords := []string{
		"mongo",
		"database",
		"connection",
		"password",
		"token",
		"secret",
		"credential",
		"grpc",
		"internal",
		"storage",
		"stack",
		"panic",
	}

	lowerMsg := strings.ToLower(err.Error())
	for _, keyword := range dangerousKeywords {
		if strings.Contains(lowerMsg, keyword) {
			return false
		}
	}

	return true
}

// BadRequest 錯誤的請求
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success":    false,
		"msg":        message,
		"error":      apperr.CodeValidation,
		"request_id": middleware.GetRequestID(c),
	})
}
