package message

// HistoryRequest 對話歷史查詢參數.
type HistoryRequest struct {
	User1 string `form:"user1"`
	User2 string `form:"user2"`
}
