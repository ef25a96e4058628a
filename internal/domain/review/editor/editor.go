// Package editor implements the review composition modal: a single draft per workspace that is
// opened for a new review or for editing one of the viewer's own reviews, staged, then submitted
// through the mutation controller.
package editor

import (
	"context"
	"sync"

	"review_board/internal/domain/review/feed"
	"review_board/internal/domain/review/model"
	"review_board/pkg/apperr"
)

// State 编辑框状态
type State int

const (
	Closed State = iota
	ComposingNew
	ComposingEdit
	Submitting
)

var stateNames = [...]string{"closed", "composing_new", "composing_edit", "submitting"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Composing 是否处于编辑中
func (s State) Composing() bool {
	return s == ComposingNew || s == ComposingEdit
}

// Mutator 提交草稿所需的写操作
type Mutator interface {
	CreateReview(ctx context.Context, content string, image *model.Image) (*model.Review, error)
	UpdateReview(ctx context.Context, id int64, content string, image *model.Image, removeImage bool) error
}

// Snapshotter 提供编辑时预填充用的快照
type Snapshotter interface {
	Snapshot() *feed.Snapshot
}

// IdentitySource 当前登录身份
type IdentitySource interface {
	CurrentIdentity(ctx context.Context) (*model.Identity, error)
}

// Status 编辑框的只读视图
type Status struct {
	State            string `json:"state"`
	ReviewID         int64  `json:"reviewId,omitempty"`
	Content          string `json:"content"`
	ImageName        string `json:"imageName,omitempty"`
	ImageSize        int64  `json:"imageSize,omitempty"`
	ExistingImageURL string `json:"existingImageUrl,omitempty"`
	RemoveImage      bool   `json:"removeImage"`
	Error            string `json:"error,omitempty"`
}

// Session 单个工作区的编辑会话
type Session struct {
	mutator  Mutator
	feed     Snapshotter
	identity IdentitySource

	mu       sync.Mutex
	state    State
	resume   State // Submitting 失败后回到的状态
	reviewID int64
	content  string
	image    *model.Image
	existing string
	remove   bool
	lastErr  error
}

func New(mutator Mutator, feed Snapshotter, identity IdentitySource) *Session {
	return &Session{mutator: mutator, feed: feed, identity: identity}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError 最近一次提交失败的错误，打开新草稿时清空
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:            s.state.String(),
		ReviewID:         s.reviewID,
		Content:          s.content,
		ExistingImageURL: s.existing,
		RemoveImage:      s.remove,
	}
	if s.image != nil {
		st.ImageName = s.image.Filename
		st.ImageSize = s.image.Size()
	}
	if s.lastErr != nil {
		st.Error = apperr.MessageOf(s.lastErr)
		if st.Error == "" {
			st.Error = s.lastErr.Error()
		}
	}
	return st
}

// reset 调用方需持有锁
func (s *Session) reset() {
	s.state = Closed
	s.resume = Closed
	s.reviewID = 0
	s.content = ""
	s.image = nil
	s.existing = ""
	s.remove = false
}

func (s *Session) requireClosed(op string) error {
	if s.state != Closed {
		return apperr.New(apperr.KindBusy, op, "another review is already being edited")
	}
	return nil
}

func (s *Session) requireComposing(op string) error {
	switch {
	case s.state == Submitting:
		return apperr.New(apperr.KindBusy, op, "the review is being submitted")
	case !s.state.Composing():
		return apperr.New(apperr.KindValidation, op, "no review is being composed")
	}
	return nil
}

func (s *Session) currentIdentity(ctx context.Context, op string) (*model.Identity, error) {
	identity, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, apperr.New(apperr.KindUnauthorized, op, "please sign in first")
	}
	return identity, nil
}

// OpenNew 打开空白草稿
func (s *Session) OpenNew(ctx context.Context) error {
	const op = "editor.open_new"

	s.mu.Lock()
	if err := s.requireClosed(op); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if _, err := s.currentIdentity(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireClosed(op); err != nil {
		return err
	}
	s.reset()
	s.lastErr = nil
	s.state = ComposingNew
	return nil
}

// OpenEdit 以快照中的评价预填充草稿，只有作者可以编辑
func (s *Session) OpenEdit(ctx context.Context, reviewID int64) error {
	const op = "editor.open_edit"

	s.mu.Lock()
	if err := s.requireClosed(op); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	identity, err := s.currentIdentity(ctx, op)
	if err != nil {
		return err
	}

	entry, ok := s.feed.Snapshot().Review(reviewID)
	if !ok {
		return apperr.New(apperr.KindNotFound, op, "the review no longer exists")
	}
	if entry.OwnerID() != identity.ID {
		return apperr.New(apperr.KindForbidden, op, "only the author can edit this review")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireClosed(op); err != nil {
		return err
	}
	s.reset()
	s.lastErr = nil
	s.state = ComposingEdit
	s.reviewID = reviewID
	s.content = entry.Content
	s.existing = entry.ImageURL
	return nil
}

// Stage 更新草稿正文
func (s *Session) Stage(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireComposing("editor.stage"); err != nil {
		return err
	}
	s.content = content
	return nil
}

// AttachImage 选择新图片，同时取消移除标记
func (s *Session) AttachImage(img *model.Image) error {
	const op = "editor.attach_image"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireComposing(op); err != nil {
		return err
	}
	if img == nil || img.Size() == 0 {
		return apperr.New(apperr.KindValidation, op, "image is empty")
	}
	s.image = img
	s.remove = false
	return nil
}

// RemoveImage 丢弃已选择的图片；编辑模式下同时移除原有图片
func (s *Session) RemoveImage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireComposing("editor.remove_image"); err != nil {
		return err
	}
	s.image = nil
	if s.state == ComposingEdit && s.existing != "" {
		s.remove = true
	}
	return nil
}

// Cancel 关闭编辑框并丢弃草稿
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Submitting {
		return apperr.New(apperr.KindBusy, "editor.cancel", "the review is being submitted")
	}
	s.reset()
	s.lastErr = nil
	return nil
}

// Close 同 Cancel
func (s *Session) Close() error {
	return s.Cancel()
}

// Submit 提交草稿。成功后关闭；失败时回到原编辑状态并保留草稿。
// 返回新建或修改的评价 id
func (s *Session) Submit(ctx context.Context) (int64, error) {
	const op = "editor.submit"

	s.mu.Lock()
	if err := s.requireComposing(op); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.resume = s.state
	s.state = Submitting
	mode, id, content, image, remove := s.resume, s.reviewID, s.content, s.image, s.remove
	s.mu.Unlock()

	var err error
	if mode == ComposingNew {
		var review *model.Review
		review, err = s.mutator.CreateReview(ctx, content, image)
		if review != nil {
			id = review.ID
		}
	} else {
		err = s.mutator.UpdateReview(ctx, id, content, image, remove)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 写入已提交但刷新失败时草稿已经落库，照常关闭
	if apperr.Failed(err) {
		s.state = s.resume
		s.lastErr = err
		return 0, err
	}
	s.reset()
	s.lastErr = err
	return id, err
}
