package httputil

import (
	"net/http"

	"chat-relay/internal/apperr"
)

// statusByCode apperr 代碼對應的 HTTP 狀態碼.
var statusByCode = map[string]int{
	apperr.CodeValidation:         http.StatusBadRequest,
	apperr.CodeUnauthorized:       http.StatusUnauthorized,
	apperr.CodeNotFound:           http.StatusNotFound,
	apperr.CodeDuplicateIdentity:  http.StatusConflict,
	apperr.CodeStorageUnavailable: http.StatusServiceUnavailable,
	apperr.CodeInternal:           http.StatusInternalServerError,
}

// StatusFor 取得錯誤對應的 HTTP 狀態碼.
func StatusFor(err error) int {
	if status, ok := statusByCode[apperr.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
