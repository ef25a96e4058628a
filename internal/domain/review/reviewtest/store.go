// Package reviewtest provides in-memory fakes of the remote store, object storage and
// session source for tests of the review feed core.
package reviewtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"review_board/internal/domain/review/model"
	"review_board/internal/domain/review/repository"
)

type reactionKey struct {
	reviewID int64
	userID   string
	kind     model.ReactionKind
}

// Store 内存版 ReviewRepository。外键级联和唯一约束与数据库一致
type Store struct {
	mu        sync.Mutex
	reviews   map[int64]model.Review
	replies   map[int64]model.Reply
	reactions map[reactionKey]model.Reaction
	profiles  map[string]model.Author
	nextID    int64
	failures  map[string]error
	calls     map[string]int

	// Now 写入时间戳，默认每次调用前进一秒
	Now func() time.Time
}

var _ repository.ReviewRepository = (*Store)(nil)

func NewStore() *Store {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int64
	s := &Store{
		reviews:   map[int64]model.Review{},
		replies:   map[int64]model.Reply{},
		reactions: map[reactionKey]model.Reaction{},
		profiles:  map[string]model.Author{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
	s.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

// AddProfile 登记作者资料
func (s *Store) AddProfile(id, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = model.Author{ID: id, Username: username}
}

// Fail 让 op 之后的调用都返回 err；err 为 nil 时取消
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls 返回 op 被调用的次数
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter 调用方需持有锁
func (s *Store) enter(ctx context.Context, op string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failures[op]
}

// SeedReview 直接写入一条评价，不经过失败注入
func (s *Store) SeedReview(r model.Review) model.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
	} else if r.ID > s.nextID {
		s.nextID = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	r.Author, r.Replies = nil, nil
	s.reviews[r.ID] = r
	return r
}

// SeedReply 直接写入一条回复
func (s *Store) SeedReply(rp model.Reply) model.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rp.ID == 0 {
		s.nextID++
		rp.ID = s.nextID
	} else if rp.ID > s.nextID {
		s.nextID = rp.ID
	}
	if rp.CreatedAt.IsZero() {
		rp.CreatedAt = s.Now()
	}
	rp.Author = nil
	s.replies[rp.ID] = rp
	return rp
}

// ReviewCount 存活评价数
func (s *Store) ReviewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reviews)
}

// ReplyCount 存活回复数
func (s *Store) ReplyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

// ReactionCount 某条评价的反应总数
func (s *Store) ReactionCount(reviewID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.reactions {
		if k.reviewID == reviewID {
			n++
		}
	}
	return n
}

func (s *Store) author(id string) *model.Author {
	a, ok := s.profiles[id]
	if !ok {
		return nil
	}
	return &a
}

// ListReviews 返回顺序故意不固定（map 遍历），排序由调用方负责
func (s *Store) ListReviews(ctx context.Context) ([]model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ListReviews"); err != nil {
		return nil, err
	}

	out := make([]model.Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		r.Author = s.author(r.AuthorID)
		r.Replies = nil
		for _, rp := range s.replies {
			if rp.ReviewID == r.ID {
				rp.Author = s.author(rp.AuthorID)
				r.Replies = append(r.Replies, rp)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ListReactions(ctx context.Context) ([]model.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ListReactions"); err != nil {
		return nil, err
	}

	out := make([]model.Reaction, 0, len(s.reactions))
	for _, rc := range s.reactions {
		out = append(out, rc)
	}
	return out, nil
}

func (s *Store) GetReview(ctx context.Context, id int64) (*model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "GetReview"); err != nil {
		return nil, err
	}

	r, ok := s.reviews[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CreateReview(ctx context.Context, review *model.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "CreateReview"); err != nil {
		return err
	}

	s.nextID++
	review.ID = s.nextID
	review.CreatedAt = s.Now()
	review.UpdatedAt = review.CreatedAt
	stored := *review
	stored.Author, stored.Replies = nil, nil
	s.reviews[review.ID] = stored
	return nil
}

func (s *Store) UpdateReview(ctx context.Context, id int64, authorID string, patch repository.ReviewPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "UpdateReview"); err != nil {
		return false, err
	}

	r, ok := s.reviews[id]
	if !ok || r.AuthorID != authorID {
		return false, nil
	}
	r.Content = patch.Content
	if patch.SetImage {
		r.ImageURL = patch.ImageURL
	}
	r.UpdatedAt = s.Now()
	s.reviews[id] = r
	return true, nil
}

// DeleteReview 同时删除回复与反应，对应数据库的 ON DELETE CASCADE
func (s *Store) DeleteReview(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteReview"); err != nil {
		return false, err
	}

	if _, ok := s.reviews[id]; !ok {
		return false, nil
	}
	delete(s.reviews, id)
	for rid, rp := range s.replies {
		if rp.ReviewID == id {
			delete(s.replies, rid)
		}
	}
	for k := range s.reactions {
		if k.reviewID == id {
			delete(s.reactions, k)
		}
	}
	return true, nil
}

func (s *Store) GetReply(ctx context.Context, id int64) (*model.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "GetReply"); err != nil {
		return nil, err
	}

	rp, ok := s.replies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rp, nil
}

func (s *Store) CreateReply(ctx context.Context, reply *model.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "CreateReply"); err != nil {
		return err
	}

	if _, ok := s.reviews[reply.ReviewID]; !ok {
		return repository.ErrNotFound
	}
	s.nextID++
	reply.ID = s.nextID
	reply.CreatedAt = s.Now()
	stored := *reply
	stored.Author = nil
	s.replies[reply.ID] = stored
	return nil
}

func (s *Store) DeleteReply(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteReply"); err != nil {
		return false, err
	}

	if _, ok := s.replies[id]; !ok {
		return false, nil
	}
	delete(s.replies, id)
	return true, nil
}

func (s *Store) HasReacted(ctx context.Context, reviewID int64, userID string, kind model.ReactionKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "HasReacted"); err != nil {
		return false, err
	}

	_, ok := s.reactions[reactionKey{reviewID, userID, kind}]
	return ok, nil
}

func (s *Store) CreateReaction(ctx context.Context, reaction *model.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "CreateReaction"); err != nil {
		return err
	}

	if _, ok := s.reviews[reaction.ReviewID]; !ok {
		return repository.ErrNotFound
	}
	k := reactionKey{reaction.ReviewID, reaction.UserID, reaction.Kind}
	if _, dup := s.reactions[k]; dup {
		return repository.ErrDuplicate
	}
	reaction.CreatedAt = s.Now()
	s.reactions[k] = *reaction
	return nil
}

func (s *Store) DeleteReaction(ctx context.Context, reviewID int64, userID string, kind model.ReactionKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteReaction"); err != nil {
		return false, err
	}

	k := reactionKey{reviewID, userID, kind}
	if _, ok := s.reactions[k]; !ok {
		return false, nil
	}
	delete(s.reactions, k)
	return true, nil
}

func (s *Store) Stats(ctx context.Context) (*repository.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Stats"); err != nil {
		return nil, err
	}
	return &repository.Stats{Reviews: int64(len(s.reviews)), Replies: int64(len(s.replies))}, nil
}

// ErrObjectExists 不允许覆盖时对象已存在
var ErrObjectExists = errors.New("object already exists")

// Uploader 内存对象存储
type Uploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	// UploadErr/DeleteErr 非空时对应操作失败
	UploadErr error
	DeleteErr error
}

func NewUploader() *Uploader {
	return &Uploader{objects: map[string][]byte{}}
}

func (u *Uploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string, overwrite bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.UploadErr != nil {
		return u.UploadErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := u.objects[key]; exists && !overwrite {
		return fmt.Errorf("%s: %w", key, ErrObjectExists)
	}
	u.objects[key] = data
	return nil
}

func (u *Uploader) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (u *Uploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.DeleteErr != nil {
		return u.DeleteErr
	}
	delete(u.objects, key)
	u.deleted = append(u.deleted, key)
	return nil
}

// Keys 当前存在的对象
func (u *Uploader) Keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	keys := make([]string, 0, len(u.objects))
	for k := range u.objects {
		keys = append(keys, k)
	}
	return keys
}

// Has 对象是否存在
func (u *Uploader) Has(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.objects[key]
	return ok
}
