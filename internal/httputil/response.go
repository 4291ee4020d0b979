package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 回應訊息常數.
const (
	Registered       = "Registered!"
	FileTooLarge     = "File too large"
	ProcessingFailed = "Processing failed"
)

// OK 回傳 success=true 的回應，fields 會平鋪在同一層.
func OK(c *gin.Context, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Fail 回傳 success=false 但狀態碼為 200 的回應，用於「查無結果」這類預期中的否定答案.
func Fail(c *gin.Context, fields gin.H) {
	body := gin.H{"success": false}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
