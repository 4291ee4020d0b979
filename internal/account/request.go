package account

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chat-relay/internal/apperr"
	"chat-relay/internal/constants"
	"chat-relay/internal/platform/middleware"
	"chat-relay/internal/storage/database"
)

// CredentialsRequest 註冊與登入請求.
type CredentialsRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Validate 檢查帳號密碼格式.
func (r *CredentialsRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if err := database.ValidateHandle("username", r.Username); err != nil {
		return err
	}
	if r.Password == "" {
		return apperr.Validation("password", "is required")
	}
	// bcrypt 只接受 72 bytes
	if len(r.Password) > constants.MaxPasswordLength {
		return apperr.Validation("password", fmt.Sprintf("must be at most %d bytes", constants.MaxPasswordLength))
	}
	return nil
}

// ProfileRequest 更新個人資料的表單欄位，圖片另以 profilePic 檔案欄位上傳.
type ProfileRequest struct {
	Username string  `form:"username"`
	Bio      *string `form:"bio"`
}

// Validate 檢查並消毒個人資料欄位.
func (r *ProfileRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if err := database.ValidateHandle("username", r.Username); err != nil {
		return err
	}
	if r.Bio != nil {
		bio := middleware.SanitizeText(*r.Bio)
		if utf8.RuneCountInString(bio) > constants.MaxBioLength {
			return apperr.Validation("bio", fmt.Sprintf("must be at most %d characters", constants.MaxBioLength))
		}
		r.Bio = &bio
	}
	return nil
}
