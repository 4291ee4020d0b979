package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"chat-relay/internal/apperr"
	"chat-relay/internal/storage/database"

	"github.com/gin-gonic/gin"
)

// reject 以 API 統一的錯誤格式結束請求
func reject(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":    false,
		"msg":        msg,
		"error":      code,
		"request_id": GetRequestID(c),
	})
}

// RequireHandleQuery 檢查查詢參數中的 handle 格式，失敗時以 400 結束請求
func RequireHandleQuery(params ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range params {
			if err := database.ValidateHandle(name, c.Query(name)); err != nil {
				reject(c, http.StatusBadRequest, apperr.Code(err), apperr.PublicMessage(err))
				return
			}
		}
		c.Next()
	}
}

// SanitizeText 移除 NUL 與控制字元，保留換行和 Tab
func SanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// RequestSizeLimiter 限制請求體大小，未宣告長度的請求由 MaxBytesReader 截斷
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			reject(c, http.StatusRequestEntityTooLarge, apperr.CodeValidation,
				fmt.Sprintf("請求體過大，最大允許 %d 字節", maxSize))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
