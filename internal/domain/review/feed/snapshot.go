package feed

import (
	"sort"
	"time"

	"review_board/internal/domain/review/model"
)

// Person 反规范化的作者信息
type Person struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	// Unknown 为 true 表示作者记录缺失，使用了占位信息
	Unknown bool `json:"unknown,omitempty"`
}

// ReplyEntry 快照中的回复
type ReplyEntry struct {
	ID        int64     `json:"id"`
	ReviewID  int64     `json:"reviewId"`
	Author    Person    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r ReplyEntry) OwnerID() string {
	return r.Author.ID
}

// ReviewEntry 快照中的评价
type ReviewEntry struct {
	ID        int64        `json:"id"`
	Author    Person       `json:"author"`
	Content   string       `json:"content"`
	ImageURL  string       `json:"imageUrl,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Replies   []ReplyEntry `json:"replies"`

	Reactions map[model.ReactionKind]int  `json:"reactions"`
	Reacted   map[model.ReactionKind]bool `json:"reacted"`
}

func (e ReviewEntry) OwnerID() string {
	return e.Author.ID
}

func (e ReviewEntry) ReactionCount(kind model.ReactionKind) int {
	return e.Reactions[kind]
}

func (e ReviewEntry) HasReacted(kind model.ReactionKind) bool {
	return e.Reacted[kind]
}

func (e ReviewEntry) clone() ReviewEntry {
	cp := e
	cp.Replies = append([]ReplyEntry(nil), e.Replies...)
	cp.Reactions = make(map[model.ReactionKind]int, len(e.Reactions))
	for k, v := range e.Reactions {
		cp.Reactions[k] = v
	}
	cp.Reacted = make(map[model.ReactionKind]bool, len(e.Reacted))
	for k, v := range e.Reacted {
		cp.Reacted[k] = v
	}
	return cp
}

// Snapshot 某一时刻完整一致的评价流，构建后不再修改
type Snapshot struct {
	reviews  []ReviewEntry
	index    map[int64]int
	replies  map[int64]ReplyEntry
	loaded   bool
	seq      uint64
	viewerID string
	builtAt  time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{index: map[int64]int{}, replies: map[int64]ReplyEntry{}}
}

// Loaded 至少成功刷新过一次
func (s *Snapshot) Loaded() bool {
	return s.loaded
}

// BuiltAt 快照构建时间
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// ViewerID 构建快照时的观看者，未登录为空
func (s *Snapshot) ViewerID() string {
	return s.viewerID
}

func (s *Snapshot) Len() int {
	return len(s.reviews)
}

// Reviews 返回按时间倒序排列的评价副本
func (s *Snapshot) Reviews() []ReviewEntry {
	out := make([]ReviewEntry, len(s.reviews))
	for i, e := range s.reviews {
		out[i] = e.clone()
	}
	return out
}

// Review 按 id 查找评价
func (s *Snapshot) Review(id int64) (ReviewEntry, bool) {
	i, ok := s.index[id]
	if !ok {
		return ReviewEntry{}, false
	}
	return s.reviews[i].clone(), true
}

// Reply 按 id 查找回复
func (s *Snapshot) Reply(id int64) (ReplyEntry, bool) {
	r, ok := s.replies[id]
	return r, ok
}

func person(a *model.Author, id string) Person {
	if a == nil {
		return Person{ID: id, Username: model.UnknownUsername, Unknown: true}
	}
	p := Person{ID: a.ID, Username: a.Username}
	if p.ID == "" {
		p.ID = id
	}
	if p.Username == "" {
		p.Username = model.UnknownUsername
	}
	if a.AvatarURL != nil {
		p.AvatarURL = *a.AvatarURL
	}
	return p
}

// buildSnapshot 从原始行构建快照；反应数量在本地按行计数
func buildSnapshot(reviews []model.Review, reactions []model.Reaction, viewerID string, seq uint64, now time.Time) *Snapshot {
	snap := &Snapshot{
		reviews:  make([]ReviewEntry, 0, len(reviews)),
		index:    make(map[int64]int, len(reviews)),
		replies:  map[int64]ReplyEntry{},
		loaded:   true,
		seq:      seq,
		viewerID: viewerID,
		builtAt:  now,
	}

	for _, r := range reviews {
		if _, dup := snap.index[r.ID]; dup {
			continue
		}
		entry := ReviewEntry{
			ID:        r.ID,
			Author:    person(r.Author, r.AuthorID),
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
			Replies:   make([]ReplyEntry, 0, len(r.Replies)),
			Reactions: map[model.ReactionKind]int{},
			Reacted:   map[model.ReactionKind]bool{},
		}
		if r.ImageURL != nil {
			entry.ImageURL = *r.ImageURL
		}
		for _, rp := range r.Replies {
			entry.Replies = append(entry.Replies, ReplyEntry{
				ID:        rp.ID,
				ReviewID:  r.ID,
				Author:    person(rp.Author, rp.AuthorID),
				Content:   rp.Content,
				CreatedAt: rp.CreatedAt,
			})
		}
		sort.SliceStable(entry.Replies, func(i, j int) bool {
			a, b := entry.Replies[i], entry.Replies[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})

		snap.index[r.ID] = len(snap.reviews)
		snap.reviews = append(snap.reviews, entry)
	}

	sort.SliceStable(snap.reviews, func(i, j int) bool {
		a, b := snap.reviews[i], snap.reviews[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for i, e := range snap.reviews {
		snap.index[e.ID] = i
		for _, rp := range e.Replies {
			snap.replies[rp.ID] = rp
		}
	}

	for _, rc := range reactions {
		i, ok := snap.index[rc.ReviewID]
		if !ok {
			continue
		}
		snap.reviews[i].Reactions[rc.Kind]++
		if viewerID != "" && rc.UserID == viewerID {
			snap.reviews[i].Reacted[rc.Kind] = true
		}
	}

	return snap
}
