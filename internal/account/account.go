package account

import (
	"errors"
	"net/http"

	"chat-relay/internal/apperr"
	"chat-relay/internal/httputil"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/security/audit"
	"chat-relay/internal/storage/blob"
	"chat-relay/internal/storage/database/user"
	"chat-relay/internal/upload"

	"github.com/gin-gonic/gin"
)

// ProfilePicField 個人資料圖片的表單欄位.
const ProfilePicField = "profilePic"

// AccountHandler 帳號相關處理器.
type AccountHandler struct {
	users user.Directory
	blobs blob.Store
	audit *audit.AuditService
}

// NewAccountHandler 創建帳號處理器.
func NewAccountHandler(users user.Directory, blobs blob.Store, auditSvc *audit.AuditService) *AccountHandler {
	return &AccountHandler{
		users: users,
		blobs: blobs,
		audit: auditSvc,
	}
}

// Register 註冊新帳號，handle 不分大小寫唯一.
func (h *AccountHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		httputil.BadRequest(c, "Invalid request format")
		return
	}
	if err := req.Validate(); err != nil {
		httputil.FromError(c, err)
		return
	}

	ctx := c.Request.Context()
	profile, err := h.users.Create(ctx, req.Username, req.Password)
	if err != nil {
		httputil.FromError(c, err)
		return
	}

	h.audit.LogRegistration(ctx, profile.Username)
	logger.Info(ctx, "用戶註冊成功", logger.WithHandle(profile.Username), logger.WithAction("register"))

	httputil.OK(c, gin.H{"msg": httputil.Registered})
}

// Login 驗證帳號密碼並回傳個人資料.
func (h *AccountHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		httputil.BadRequest(c, "Invalid request format")
		return
	}
	if err := req.Validate(); err != nil {
		httputil.FromError(c, err)
		return
	}

	ctx := c.Request.Context()
	profile, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			h.audit.LogAuthenticationFailure(ctx, req.Username, "invalid_credentials")
		}
		httputil.FromError(c, err)
		return
	}

	httputil.OK(c, gin.H{
		"username": profile.Username,
		"pic":      profile.ProfilePic,
		"bio":      profile.Bio,
	})
}

// SearchUser 以不分大小寫的 handle 查詢用戶.
func (h *AccountHandler) SearchUser(c *gin.Context) {
	profile, err := h.users.FindByHandleCaseInsensitive(c.Request.Context(), c.Query("q"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			httputil.Fail(c, nil)
			return
		}
		httputil.FromError(c, err)
		return
	}

	httputil.OK(c, gin.H{
		"foundUser": profile.Username,
		"pic":       profile.ProfilePic,
		"bio":       profile.Bio,
	})
}

// UpdateProfile 更新簡介與頭像（multipart: username, bio, profilePic）.
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBind(&req); err != nil {
		httputil.BadRequest(c, "Invalid request format")
		return
	}
	if err := req.Validate(); err != nil {
		httputil.FromError(c, err)
		return
	}

	ctx := c.Request.Context()
	update := user.ProfileUpdate{Bio: req.Bio}

	fileHeader, err := c.FormFile(ProfilePicField)
	switch {
	case err == nil:
		url, err := upload.Save(ctx, h.blobs, fileHeader)
		if err != nil {
			upload.RespondError(c, err)
			return
		}
		update.ProfilePic = &url
	case !errors.Is(err, http.ErrMissingFile):
		httputil.BadRequest(c, "Invalid profile picture")
		return
	}

	profile, err := h.users.UpdateProfile(ctx, req.Username, update)
	if err != nil {
		httputil.FromError(c, err)
		return
	}

	logger.Info(ctx, "個人資料已更新", logger.WithHandle(profile.Username), logger.WithAction("update_profile"))

	body := gin.H{"bio": profile.Bio}
	if update.ProfilePic != nil {
		body["profilePic"] = profile.ProfilePic
	}
	httputil.OK(c, body)
}
