package message

import (
	"strings"

	"chat-relay/internal/storage/database"
)

// ValidateHistoryRequest 驗證對話歷史查詢參數.
func ValidateHistoryRequest(req *HistoryRequest) error {
	req.User1 = strings.TrimSpace(req.User1)
	req.User2 = strings.TrimSpace(req.User2)

	if err := database.ValidateHandle("user1", req.User1); err != nil {
		return err
	}
	return database.ValidateHandle("user2", req.User2)
}
