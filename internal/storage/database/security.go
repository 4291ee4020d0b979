package database

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chat-relay/internal/apperr"
	"chat-relay/internal/constants"
)

// ValidateHandle 驗證 handle：非空、長度上限、不含 Mongo 操作符字元
func ValidateHandle(field, handle string) error {
	if strings.TrimSpace(handle) == "" {
		return apperr.Validation(field, "is required")
	}
	if utf8.RuneCountInString(handle) > constants.MaxHandleLength {
		return apperr.Validation(field, fmt.Sprintf("must be at most %d characters", constants.MaxHandleLength))
	}
	if strings.ContainsAny(handle, constants.HandleForbiddenChars) {
		return apperr.Validation(field, "contains illegal characters")
	}
	return nil
}

// ValidateMessageBody 驗證訊息內容長度，maxLength <= 0 時使用預設值
func ValidateMessageBody(body string, maxLength int) error {
	if maxLength <= 0 {
		maxLength = constants.DefaultMaxMessageLength
	}
	if utf8.RuneCountInString(body) > maxLength {
		return apperr.Validation("body", fmt.Sprintf("exceeds maximum length of %d characters", maxLength))
	}
	// 防止 NULL 字符注入
	if strings.Contains(body, "\x00") {
		return apperr.Validation("body", "contains illegal characters")
	}
	return nil
}
