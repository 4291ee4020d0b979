package user

import (
	"context"
	"strings"
	"time"

	"chat-relay/internal/apperr"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// CollectionName 用戶集合名稱.
const CollectionName = "users"

// Directory 用戶目錄接口.
type Directory interface {
	FindByHandle(ctx context.Context, handle string) (*Profile, error)
	FindByHandleCaseInsensitive(ctx context.Context, handle string) (*Profile, error)
	Create(ctx context.Context, handle, password string) (*Profile, error)
	Authenticate(ctx context.Context, handle, password string) (*Profile, error)
	UpdateProfile(ctx context.Context, handle string, update ProfileUpdate) (*Profile, error)
}

// Profile 用戶資料.
type Profile struct {
	ID            bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Username      string        `bson:"username" json:"username"`
	UsernameLower string        `bson:"username_lower" json:"-"`
	PasswordHash  string        `bson:"password_hash" json:"-"`
	ProfilePic    string        `bson:"profile_pic" json:"pic"`
	Bio           string        `bson:"bio" json:"bio"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at" json:"updated_at"`
}

// ProfileUpdate 可更新的欄位，nil 表示不變.
type ProfileUpdate struct {
	Bio        *string
	ProfilePic *string
}

// NormalizeHandle 用於不分大小寫比對的 handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// HashPassword 以 bcrypt 雜湊密碼.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 比對密碼與雜湊.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewProfile 建立待寫入的用戶資料.
func NewProfile(handle, password string, now time.Time) (*Profile, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, apperr.Validation("username", "is required")
	}
	if password == "" {
		return nil, apperr.Validation("password", "is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Username:      handle,
		UsernameLower: NormalizeHandle(handle),
		PasswordHash:  hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Apply 套用更新欄位.
func (u ProfileUpdate) Apply(p *Profile, now time.Time) {
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.ProfilePic != nil {
		p.ProfilePic = *u.ProfilePic
	}
	p.UpdatedAt = now
}

// SetFields 轉為 $set 文件.
func (u ProfileUpdate) SetFields(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if u.Bio != nil {
		set["bio"] = *u.Bio
	}
	if u.ProfilePic != nil {
		set["profile_pic"] = *u.ProfilePic
	}
	return set
}
