package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"review_board/internal/domain/review/feed"
	"review_board/internal/domain/review/model"
	"review_board/internal/domain/review/repository"
	"review_board/internal/domain/review/session"
	"review_board/internal/pkg/uploader"
	"review_board/pkg/apperr"
	"review_board/pkg/metrics"
	"review_board/pkg/security"

	"go.uber.org/zap"
)

const (
	// MaxImageSize 评价图片大小上限
	MaxImageSize = 5 << 20
	// MaxContentLength 评价/回复正文最大字符数
	MaxContentLength = 5000
)

// OrphanSink 接收上传成功但没有被记录引用的对象
type OrphanSink interface {
	AddTask(key string)
}

// SubmitState 单个提交动作的状态
type SubmitState int

const (
	Idle SubmitState = iota
	Submitting
)

func (s SubmitState) String() string {
	if s == Submitting {
		return "submitting"
	}
	return "idle"
}

// 提交动作的键，同一个键同时只允许一个提交
const KeyCreateReview = "create-review"

func KeyUpdateReview(id int64) string { return fmt.Sprintf("update-review:%d", id) }
func KeyDeleteReview(id int64) string { return fmt.Sprintf("delete-review:%d", id) }
func KeyReply(reviewID int64) string  { return fmt.Sprintf("reply:%d", reviewID) }
func KeyDeleteReply(id int64) string  { return fmt.Sprintf("delete-reply:%d", id) }
func KeyReact(reviewID int64, kind model.ReactionKind) string {
	return fmt.Sprintf("react:%d:%s", reviewID, kind)
}

// Deps 控制器依赖
type Deps struct {
	Store   repository.ReviewRepository
	Feed    *feed.Repository
	Session *session.Manager
	Storage uploader.Uploader
	Orphans OrphanSink
	Log     *zap.Logger
	Metrics *metrics.MetricsCollector
	// Timeout 每次远程调用的超时
	Timeout time.Duration
	Now     func() time.Time
}

// Controller 评价写操作。每次写成功后刷新评价流再返回
type Controller struct {
	store   repository.ReviewRepository
	feed    *feed.Repository
	session *session.Manager
	storage uploader.Uploader
	orphans OrphanSink
	log     *zap.Logger
	metrics *metrics.MetricsCollector
	timeout time.Duration
	now     func() time.Time

	content *security.StringValidator

	mu         sync.Mutex
	submitting map[string]struct{}
}

func NewController(d Deps) *Controller {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Controller{
		store:      d.Store,
		feed:       d.Feed,
		session:    d.Session,
		storage:    d.Storage,
		orphans:    d.Orphans,
		log:        d.Log,
		metrics:    d.Metrics,
		timeout:    d.Timeout,
		now:        d.Now,
		content:    security.NewStringValidator("content", 1, MaxContentLength, true),
		submitting: map[string]struct{}{},
	}
}

// Feed 控制器维护的评价流
func (c *Controller) Feed() *feed.Repository {
	return c.feed
}

// Session 控制器使用的会话
func (c *Controller) Session() *session.Manager {
	return c.session
}

// SubmitState 查询某个动作是否正在提交，用于禁用对应的控件
func (c *Controller) SubmitState(key string) SubmitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.submitting[key]; ok {
		return Submitting
	}
	return Idle
}

// Busy 当前所有正在提交的动作键
func (c *Controller) Busy() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	busy := make(map[string]bool, len(c.submitting))
	for key := range c.submitting {
		busy[key] = true
	}
	return busy
}

func (c *Controller) begin(op, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.submitting[key]; ok {
		return apperr.New(apperr.KindBusy, op, "this action is already being submitted")
	}
	c.submitting[key] = struct{}{}
	return nil
}

func (c *Controller) end(key string) {
	c.mu.Lock()
	delete(c.submitting, key)
	c.mu.Unlock()
}

func (c *Controller) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Controller) record(op string, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case apperr.IsCommitted(err):
		result = "stale"
	case err != nil:
		result = apperr.KindOf(err).String()
	}
	c.metrics.RecordMutation(op, result)
}

// validateContent 在任何远程调用之前执行
func (c *Controller) validateContent(op, content string) (string, error) {
	content = c.content.Sanitize(content)
	if content == "" {
		return "", apperr.New(apperr.KindValidation, op, "content must not be empty")
	}
	if err := c.content.Validate(content); err != nil {
		return "", apperr.New(apperr.KindValidation, op, err.Error())
	}
	return content, nil
}

type checkedImage struct {
	img         *model.Image
	contentType string
	ext         string
}

func validateImage(op string, img *model.Image) (*checkedImage, error) {
	if img == nil {
		return nil, nil
	}
	if img.Size() == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "image is empty")
	}
	if img.Size() > MaxImageSize {
		return nil, apperr.New(apperr.KindValidation, op, "image must be 5MB or smaller")
	}
	contentType := uploader.SniffContentType(img.Data)
	ext, ok := uploader.ImageExt(contentType)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, op, "image must be a JPEG, PNG, GIF or WebP file")
	}
	return &checkedImage{img: img, contentType: contentType, ext: ext}, nil
}

// requireIdentity 未登录返回 Unauthorized
func (c *Controller) requireIdentity(ctx context.Context, op string) (*model.Identity, error) {
	identity, err := c.session.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, apperr.New(apperr.KindUnauthorized, op, "please sign in first")
	}
	return identity, nil
}

// uploadImage 上传到 review-images/<uid>/<毫秒时间戳>.<ext>，返回对象键和公开地址
func (c *Controller) uploadImage(ctx context.Context, op, userID string, img *checkedImage) (string, string, error) {
	key := fmt.Sprintf("review-images/%s/%d.%s", userID, c.now().UnixMilli(), img.ext)

	rctx, cancel := c.remote(ctx)
	defer cancel()
	err := c.storage.Upload(rctx, key, bytes.NewReader(img.img.Data), img.img.Size(), img.contentType, false)
	if err != nil {
		return "", "", apperr.Remote(apperr.KindPersistence, op, fmt.Errorf("upload image: %w", err))
	}
	return key, c.storage.PublicURL(key), nil
}

// orphan 上传成功但记录写入失败，交给清理协程；不做跨服务回滚
func (c *Controller) orphan(op, key string) {
	if key == "" {
		return
	}
	c.log.Warn("uploaded object is orphaned", zap.String("op", op), zap.String("key", key))
	if c.orphans != nil {
		c.orphans.AddTask(key)
	}
}

// refresh 写成功后刷新。刷新失败时写入不回滚，返回的 Repository 错误带有已提交标记，
// 调用方用 apperr.Failed 区分"没有写入"和"写入了但视图过期"
func (c *Controller) refresh(ctx context.Context) error {
	return apperr.Committed(c.feed.Refresh(ctx))
}

// CreateReview 发表评价，可附带一张图片
func (c *Controller) CreateReview(ctx context.Context, content string, image *model.Image) (review *model.Review, err error) {
	const op = "review.create"
	defer func() { c.record("create_review", err) }()

	content, err = c.validateContent(op, content)
	if err != nil {
		return nil, err
	}
	img, err := validateImage(op, image)
	if err != nil {
		return nil, err
	}

	if err := c.begin(op, KeyCreateReview); err != nil {
		return nil, err
	}
	defer c.end(KeyCreateReview)

	identity, err := c.requireIdentity(ctx, op)
	if err != nil {
		return nil, err
	}

	review = &model.Review{AuthorID: identity.ID, Content: content}

	var objectKey string
	if img != nil {
		var url string
		objectKey, url, err = c.uploadImage(ctx, op, identity.ID, img)
		if err != nil {
			return nil, err
		}
		review.ImageURL = &url
	}

	rctx, cancel := c.remote(ctx)
	err = c.store.CreateReview(rctx, review)
	cancel()
	if err != nil {
		c.orphan(op, objectKey)
		return nil, apperr.Remote(apperr.KindPersistence, op, err)
	}

	if err := c.refresh(ctx); err != nil {
		return review, err
	}
	return review, nil
}

// UpdateReview 只有作者可以修改。image 非空时替换图片，removeImage 清除图片，否则保留原图片
func (c *Controller) UpdateReview(ctx context.Context, id int64, content string, image *model.Image, removeImage bool) (err error) {
	const op = "review.update"
	defer func() { c.record("update_review", err) }()

	content, err = c.validateContent(op, content)
	if err != nil {
		return err
	}
	img, err := validateImage(op, image)
	if err != nil {
		return err
	}

	key := KeyUpdateReview(id)
	if err := c.begin(op, key); err != nil {
		return err
	}
	defer c.end(key)

	identity, err := c.requireIdentity(ctx, op)
	if err != nil {
		return err
	}

	existing, err := c.getReview(ctx, op, id)
	if err != nil {
		return err
	}
	if existing.AuthorID != identity.ID {
		return apperr.New(apperr.KindForbidden, op, "only the author can edit this review")
	}

	patch := repository.ReviewPatch{Content: content}
	var objectKey string
	switch {
	case img != nil:
		var url string
		objectKey, url, err = c.uploadImage(ctx, op, identity.ID, img)
		if err != nil {
			return err
		}
		patch.ImageURL, patch.SetImage = &url, true
	case removeImage:
		patch.SetImage = true
	}

	rctx, cancel := c.remote(ctx)
	updated, err := c.store.UpdateReview(rctx, id, identity.ID, patch)
	cancel()
	if err != nil {
		c.orphan(op, objectKey)
		return apperr.Remote(apperr.KindPersistence, op, err)
	}
	if !updated {
		// 服务端 author_id 条件没有命中
		c.orphan(op, objectKey)
		return apperr.New(apperr.KindForbidden, op, "only the author can edit this review")
	}

	return c.refresh(ctx)
}

func (c *Controller) getReview(ctx context.Context, op string, id int64) (*model.Review, error) {
	rctx, cancel := c.remote(ctx)
	defer cancel()
	review, err := c.store.GetReview(rctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindNotFound, op, err)
	}
	if err != nil {
		return nil, apperr.Remote(apperr.KindRepository, op, err)
	}
	return review, nil
}

// canModerate 作者本人或管理员
func (c *Controller) canModerate(ctx context.Context, entity model.Owned) (bool, error) {
	if c.session.IsOwner(entity) {
		return true, nil
	}
	return c.session.IsAdmin(ctx)
}

// DeleteReview 作者或管理员可删除；已删除视为成功
func (c *Controller) DeleteReview(ctx context.Context, id int64) (err error) {
	const op = "review.delete"
	defer func() { c.record("delete_review", err) }()

	key := KeyDeleteReview(id)
	if err := c.begin(op, key); err != nil {
		return err
	}
	defer c.end(key)

	if _, err := c.requireIdentity(ctx, op); err != nil {
		return err
	}

	existing, err := c.getReview(ctx, op, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return c.refresh(ctx)
	}
	if err != nil {
		return err
	}

	allowed, err := c.canModerate(ctx, existing)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.New(apperr.KindForbidden, op, "you can only delete your own reviews")
	}

	rctx, cancel := c.remote(ctx)
	_, err = c.store.DeleteReview(rctx, id)
	cancel()
	if err != nil {
		return apperr.Remote(apperr.KindPersistence, op, err)
	}

	return c.refresh(ctx)
}

// CreateReply 任何登录用户都可以回复
func (c *Controller) CreateReply(ctx context.Context, reviewID int64, content string) (reply *model.Reply, err error) {
	const op = "reply.create"
	defer func() { c.record("create_reply", err) }()

	content, err = c.validateContent(op, content)
	if err != nil {
		return nil, err
	}

	key := KeyReply(reviewID)
	if err := c.begin(op, key); err != nil {
		return nil, err
	}
	defer c.end(key)

	identity, err := c.requireIdentity(ctx, op)
	if err != nil {
		return nil, err
	}

	reply = &model.Reply{ReviewID: reviewID, AuthorID: identity.ID, Content: content}

	rctx, cancel := c.remote(ctx)
	err = c.store.CreateReply(rctx, reply)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, op, "the review no longer exists")
	}
	if err != nil {
		return nil, apperr.Remote(apperr.KindPersistence, op, err)
	}

	if err := c.refresh(ctx); err != nil {
		return reply, err
	}
	return reply, nil
}

// DeleteReply 作者或管理员可删除；已删除视为成功
func (c *Controller) DeleteReply(ctx context.Context, id int64) (err error) {
	const op = "reply.delete"
	defer func() { c.record("delete_reply", err) }()

	key := KeyDeleteReply(id)
	if err := c.begin(op, key); err != nil {
		return err
	}
	defer c.end(key)

	if _, err := c.requireIdentity(ctx, op); err != nil {
		return err
	}

	rctx, cancel := c.remote(ctx)
	existing, err := c.store.GetReply(rctx, id)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return c.refresh(ctx)
	}
	if err != nil {
		return apperr.Remote(apperr.KindRepository, op, err)
	}

	allowed, err := c.canModerate(ctx, existing)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.New(apperr.KindForbidden, op, "you can only delete your own replies")
	}

	rctx, cancel = c.remote(ctx)
	_, err = c.store.DeleteReply(rctx, id)
	cancel()
	if err != nil {
		return apperr.Remote(apperr.KindPersistence, op, err)
	}

	return c.refresh(ctx)
}

// ToggleReaction 存在则删除，否则插入；返回操作后的状态。
// 先查后写不是原子的，并发重复插入由复合主键拦截并视为已反应
func (c *Controller) ToggleReaction(ctx context.Context, reviewID int64, kind model.ReactionKind) (reacted bool, err error) {
	const op = "reaction.toggle"
	defer func() { c.record("toggle_reaction", err) }()

	kind, ok := model.ParseReactionKind(string(kind))
	if !ok {
		return false, apperr.New(apperr.KindValidation, op, "unknown reaction kind")
	}

	key := KeyReact(reviewID, kind)
	if err := c.begin(op, key); err != nil {
		return false, err
	}
	defer c.end(key)

	identity, err := c.requireIdentity(ctx, op)
	if err != nil {
		return false, err
	}

	rctx, cancel := c.remote(ctx)
	defer cancel()

	exists, err := c.store.HasReacted(rctx, reviewID, identity.ID, kind)
	if err != nil {
		return false, apperr.Remote(apperr.KindRepository, op, err)
	}

	if exists {
		if _, err := c.store.DeleteReaction(rctx, reviewID, identity.ID, kind); err != nil {
			return false, apperr.Remote(apperr.KindPersistence, op, err)
		}
		reacted = false
	} else {
		err := c.store.CreateReaction(rctx, &model.Reaction{ReviewID: reviewID, UserID: identity.ID, Kind: kind})
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrDuplicate):
			c.log.Debug("reaction already present", zap.Int64("review_id", reviewID), zap.String("kind", string(kind)))
		case errors.Is(err, repository.ErrNotFound):
			return false, apperr.New(apperr.KindNotFound, op, "the review no longer exists")
		default:
			return false, apperr.Remote(apperr.KindPersistence, op, err)
		}
		reacted = true
	}

	return reacted, c.refresh(ctx)
}
