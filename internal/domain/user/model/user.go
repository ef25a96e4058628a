package model

import (
	"time"

	"review_board/pkg/model"
)

// User 登录凭证，id 与 Profile.ID 相同
type User struct {
	model.BaseModel
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"` // 密码不返回给前端
}

func (User) TableName() string {
	return "users"
}

// Profile 用户资料
type Profile struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Username  string    `gorm:"not null" json:"username"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Profile) TableName() string {
	return "user_profiles"
}

// Avatar 头像地址，未设置时为空
func (p *Profile) Avatar() string {
	if p == nil || p.AvatarURL == nil {
		return ""
	}
	return *p.AvatarURL
}
