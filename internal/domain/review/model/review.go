package model

import (
	"strings"
	"time"
)

// UnknownUsername 作者记录缺失时的占位名
const UnknownUsername = "Unknown user"

// Identity 当前会话的用户身份（只读副本）
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	IsAdmin   bool   `json:"isAdmin"`
}

// Owned 有作者的实体
type Owned interface {
	OwnerID() string
}

// Author 评价/回复作者，映射 user_profiles 表的只读视图
type Author struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

func (Author) TableName() string {
	return "user_profiles"
}

// Review 评价
type Review struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID  string    `gorm:"type:uuid;not null;index" json:"authorId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ImageURL  *string   `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Author  *Author `gorm:"foreignKey:AuthorID;references:ID" json:"author,omitempty"`
	Replies []Reply `gorm:"foreignKey:ReviewID" json:"replies,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}

func (r *Review) OwnerID() string {
	return r.AuthorID
}

// Reply 评价回复，随评价级联删除（数据库外键）
type Reply struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReviewID  int64     `gorm:"not null;index" json:"reviewId"`
	AuthorID  string    `gorm:"type:uuid;not null" json:"authorId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"createdAt"`

	Author *Author `gorm:"foreignKey:AuthorID;references:ID" json:"author,omitempty"`
}

func (Reply) TableName() string {
	return "review_replies"
}

func (r *Reply) OwnerID() string {
	return r.AuthorID
}

// ReactionKind 反应类型
type ReactionKind string

const (
	ReactionLike       ReactionKind = "like"
	ReactionLove       ReactionKind = "love"
	ReactionInsightful ReactionKind = "insightful"
)

// ReactionKinds 展示顺序
var ReactionKinds = []ReactionKind{ReactionLike, ReactionLove, ReactionInsightful}

// ParseReactionKind 空字符串视为 like
func ParseReactionKind(s string) (ReactionKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ReactionLike, true
	}
	for _, k := range ReactionKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Reaction 复合主键 (review_id, user_id, kind)，同一用户对同一评价每种反应最多一条
type Reaction struct {
	ReviewID  int64        `gorm:"primaryKey;autoIncrement:false" json:"reviewId"`
	UserID    string       `gorm:"primaryKey;type:uuid" json:"userId"`
	Kind      ReactionKind `gorm:"primaryKey;type:varchar(16)" json:"kind"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (Reaction) TableName() string {
	return "review_reactions"
}

// Image 待上传的图片
type Image struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Size 图片字节数
func (img *Image) Size() int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Data))
}
