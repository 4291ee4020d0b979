package message

import (
	"net/http"

	"chat-relay/internal/httputil"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/storage/database/message"

	"github.com/gin-gonic/gin"
)

// MessageHandler message 處理器.
type MessageHandler struct {
	messageRepo message.Repository
}

// NewMessageHandler 創建新的 message 處理器.
func NewMessageHandler(messageRepo message.Repository) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
	}
}

// GetMessages 回傳兩人之間的對話（不分方向，依時間排序）.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "Invalid query parameters")
		return
	}
	if err := ValidateHistoryRequest(&req); err != nil {
		httputil.FromError(c, err)
		return
	}

	msgs, err := h.messageRepo.History(c.Request.Context(), req.User1, req.User2)
	if err != nil {
		httputil.FromError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*message.Message{}
	}

	logger.Debug(c.Request.Context(), "查詢對話歷史",
		logger.WithHandle(req.User1),
		logger.WithDetails(map[string]interface{}{"peer": req.User2, "count": len(msgs)}))

	c.JSON(http.StatusOK, msgs)
}
