// Package view projects feed snapshots into view models and HTML pages. User supplied text only
// reaches the page through the sanitizer and html/template escaping.
package view

import (
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"review_board/internal/domain/review/feed"
	"review_board/internal/domain/review/model"
	"review_board/pkg/security"
)

var xss = security.NewXSSProtection()

// Author 展示用的作者信息
type Author struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	// Initial 没有头像时显示的首字母
	Initial string `json:"initial"`
}

// Reaction 单种反应的计数和当前用户是否已反应
type Reaction struct {
	Kind    model.ReactionKind `json:"kind"`
	Count   int                `json:"count"`
	Reacted bool               `json:"reacted"`
}

type Reply struct {
	ID          int64         `json:"id"`
	Author      Author        `json:"author"`
	Content     string        `json:"content"`
	ContentHTML template.HTML `json:"contentHtml"`
	TimeAgo     string        `json:"timeAgo"`
	CreatedAt   time.Time     `json:"createdAt"`
	CanDelete   bool          `json:"canDelete"`
}

type Item struct {
	ID          int64         `json:"id"`
	Author      Author        `json:"author"`
	Content     string        `json:"content"`
	ContentHTML template.HTML `json:"contentHtml"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	TimeAgo     string        `json:"timeAgo"`
	CreatedAt   time.Time     `json:"createdAt"`
	Edited      bool          `json:"edited"`
	CanEdit     bool          `json:"canEdit"`
	CanDelete   bool          `json:"canDelete"`
	Reactions   []Reaction    `json:"reactions"`
	Replies     []Reply       `json:"replies"`
}

// FeedView 一次渲染所需的全部数据
type FeedView struct {
	Loaded   bool    `json:"loaded"`
	Error    string  `json:"error,omitempty"`
	SignedIn bool    `json:"signedIn"`
	Viewer   *Author `json:"viewer,omitempty"`
	IsAdmin  bool    `json:"isAdmin"`
	Items    []Item  `json:"items"`
}

// Project 把快照转换为视图。viewer 为 nil 表示未登录
func Project(snap *feed.Snapshot, viewer *model.Identity, now time.Time) FeedView {
	fv := FeedView{Items: []Item{}}
	if viewer != nil {
		a := author(feed.Person{ID: viewer.ID, Username: viewer.Username, AvatarURL: viewer.AvatarURL})
		fv.Viewer = &a
		fv.SignedIn = true
		fv.IsAdmin = viewer.IsAdmin
	}
	if snap == nil {
		return fv
	}
	fv.Loaded = snap.Loaded()

	for _, r := range snap.Reviews() {
		owner := viewer != nil && r.OwnerID() == viewer.ID
		item := Item{
			ID:          r.ID,
			Author:      author(r.Author),
			Content:     r.Content,
			ContentHTML: template.HTML(xss.PlainTextToHTML(r.Content)),
			ImageURL:    r.ImageURL,
			TimeAgo:     TimeAgo(r.CreatedAt, now),
			CreatedAt:   r.CreatedAt,
			Edited:      r.UpdatedAt.After(r.CreatedAt),
			CanEdit:     owner,
			CanDelete:   owner || fv.IsAdmin,
			Reactions:   make([]Reaction, 0, len(model.ReactionKinds)),
			Replies:     make([]Reply, 0, len(r.Replies)),
		}
		for _, kind := range model.ReactionKinds {
			item.Reactions = append(item.Reactions, Reaction{
				Kind:    kind,
				Count:   r.ReactionCount(kind),
				Reacted: r.HasReacted(kind),
			})
		}
		for _, rp := range r.Replies {
			item.Replies = append(item.Replies, Reply{
				ID:          rp.ID,
				Author:      author(rp.Author),
				Content:     rp.Content,
				ContentHTML: template.HTML(xss.PlainTextToHTML(rp.Content)),
				TimeAgo:     TimeAgo(rp.CreatedAt, now),
				CreatedAt:   rp.CreatedAt,
				CanDelete:   (viewer != nil && rp.OwnerID() == viewer.ID) || fv.IsAdmin,
			})
		}
		fv.Items = append(fv.Items, item)
	}
	return fv
}

func author(p feed.Person) Author {
	return Author{
		ID:        p.ID,
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
		Initial:   initial(p.Username),
	}
}

// initial 用户名首字母大写，取不到时为 U
func initial(username string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(username))
	if r == utf8.RuneError || !unicode.IsPrint(r) {
		return "U"
	}
	return string(unicode.ToUpper(r))
}

// TimeAgo 相对时间标签
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	minutes := int(d / time.Minute)
	hours := int(d / time.Hour)
	days := int(d / (24 * time.Hour))

	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	case days < 7:
		return fmt.Sprintf("%dd ago", days)
	case days/7 < 4:
		return fmt.Sprintf("%dw ago", days/7)
	}
	months := days / 30
	if months < 1 {
		months = 1
	}
	return fmt.Sprintf("%dmo ago", months)
}
