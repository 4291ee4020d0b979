package apperr

import (
	"errors"
	"fmt"
)

// 錯誤分類，搭配 errors.Is 使用.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("record not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDuplicateIdentity  = errors.New("identity already taken")
	ErrUnauthorized       = errors.New("invalid credentials")
)

// 對外錯誤代碼.
const (
	CodeValidation         = "validation"
	CodeNotFound           = "not_found"
	CodeStorageUnavailable = "storage_unavailable"
	CodeDuplicateIdentity  = "duplicate_identity"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal"
)

// ValidationError 欄位驗證錯誤.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is 讓 errors.Is(err, ErrValidation) 成立.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation 建立欄位驗證錯誤.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Storage 將後端錯誤包裝為 ErrStorageUnavailable.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}

// Code 取得錯誤對應的對外代碼.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStorageUnavailable):
		return CodeStorageUnavailable
	case errors.Is(err, ErrDuplicateIdentity):
		return CodeDuplicateIdentity
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}

// PublicMessage 回傳可安全顯示給客戶端的訊息.
func PublicMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	switch Code(err) {
	case CodeNotFound:
		return "record not found"
	case CodeStorageUnavailable:
		return "storage temporarily unavailable"
	case CodeDuplicateIdentity:
		return "ID Taken!"
	case CodeUnauthorized:
		return "Wrong ID/Pass"
	default:
		return "internal error"
	}
}
