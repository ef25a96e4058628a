package repository

import (
	"context"
	"errors"
	"time"

	"review_board/internal/domain/review/model"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在，或者外键指向的父记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 违反唯一约束
	ErrDuplicate = errors.New("duplicate record")
)

// Stats 管理后台统计
type Stats struct {
	Reviews int64 `json:"reviews"`
	Replies int64 `json:"replies"`
}

// ReviewPatch 更新评价；SetImage 为 false 时保留原图片
type ReviewPatch struct {
	Content  string
	ImageURL *string
	SetImage bool
}

// ReviewRepository 接口定义
type ReviewRepository interface {
	// ListReviews 按 created_at DESC, id ASC 返回全部评价，附带作者、回复及回复作者
	ListReviews(ctx context.Context) ([]model.Review, error)
	ListReactions(ctx context.Context) ([]model.Reaction, error)

	GetReview(ctx context.Context, id int64) (*model.Review, error)
	CreateReview(ctx context.Context, review *model.Review) error
	// UpdateReview 仅当 author_id 匹配时更新，返回是否有行被修改
	UpdateReview(ctx context.Context, id int64, authorID string, patch ReviewPatch) (bool, error)
	DeleteReview(ctx context.Context, id int64) (bool, error)

	GetReply(ctx context.Context, id int64) (*model.Reply, error)
	CreateReply(ctx context.Context, reply *model.Reply) error
	DeleteReply(ctx context.Context, id int64) (bool, error)

	HasReacted(ctx context.Context, reviewID int64, userID string, kind model.ReactionKind) (bool, error)
	CreateReaction(ctx context.Context, reaction *model.Reaction) error
	DeleteReaction(ctx context.Context, reviewID int64, userID string, kind model.ReactionKind) (bool, error)

	Stats(ctx context.Context) (*Stats, error)
}

// reviewRepository 实现
type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository 创建新的仓库实例
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

// translateError 把驱动层错误统一为仓库错误
func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrDuplicate
		case "23503": // foreign_key_violation
			return ErrNotFound
		}
	}
	return err
}

func (r *reviewRepository) ListReviews(ctx context.Context) ([]model.Review, error) {
	var reviews []model.Review
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Replies.Author").
		Order("created_at DESC, id ASC").
		Find(&reviews).Error
	if err != nil {
		return nil, translateError(err)
	}
	return reviews, nil
}

func (r *reviewRepository) ListReactions(ctx context.Context) ([]model.Reaction, error) {
	var reactions []model.Reaction
	if err := r.db.WithContext(ctx).Find(&reactions).Error; err != nil {
		return nil, translateError(err)
	}
	return reactions, nil
}

func (r *reviewRepository) GetReview(ctx context.Context, id int64) (*model.Review, error) {
	var review model.Review
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&review).Error; err != nil {
		return nil, translateError(err)
	}
	return &review, nil
}

func (r *reviewRepository) CreateReview(ctx context.Context, review *model.Review) error {
	return translateError(r.db.WithContext(ctx).Omit("Author", "Replies").Create(review).Error)
}

func (r *reviewRepository) UpdateReview(ctx context.Context, id int64, authorID string, patch ReviewPatch) (bool, error) {
	updates := map[string]interface{}{
		"content":    patch.Content,
		"updated_at": time.Now(),
	}
	if patch.SetImage {
		updates["image_url"] = patch.ImageURL
	}

	result := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Where("id = ? AND author_id = ?", id, authorID).
		Updates(updates)
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *reviewRepository) DeleteReview(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Review{})
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *reviewRepository) GetReply(ctx context.Context, id int64) (*model.Reply, error) {
	var reply model.Reply
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reply).Error; err != nil {
		return nil, translateError(err)
	}
	return &reply, nil
}

func (r *reviewRepository) CreateReply(ctx context.Context, reply *model.Reply) error {
	return translateError(r.db.WithContext(ctx).Omit("Author").Create(reply).Error)
}

func (r *reviewRepository) DeleteReply(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Reply{})
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *reviewRepository) HasReacted(ctx context.Context, reviewID int64, userID string, kind model.ReactionKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Reaction{}).
		Where("review_id = ? AND user_id = ? AND kind = ?", reviewID, userID, kind).
		Count(&count).Error
	if err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

func (r *reviewRepository) CreateReaction(ctx context.Context, reaction *model.Reaction) error {
	return translateError(r.db.WithContext(ctx).Create(reaction).Error)
}

func (r *reviewRepository) DeleteReaction(ctx context.Context, reviewID int64, userID string, kind model.ReactionKind) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("review_id = ? AND user_id = ? AND kind = ?", reviewID, userID, kind).
		Delete(&model.Reaction{})
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *reviewRepository) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Review{}).Count(&stats.Reviews).Error; err != nil {
		return nil, translateError(err)
	}
	if err := db.Model(&model.Reply{}).Count(&stats.Replies).Error; err != nil {
		return nil, translateError(err)
	}
	return &stats, nil
}
