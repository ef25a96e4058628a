package service

import (
	"context"
	"time"

	"review_board/internal/domain/review/repository"
	"review_board/pkg/apperr"
)

// Stats 管理后台统计
type Stats struct {
	Reviews int64 `json:"reviews"`
	Replies int64 `json:"replies"`
	Users   int64 `json:"users"`
}

// ReviewCounter 评价与回复数量
type ReviewCounter interface {
	Stats(ctx context.Context) (*repository.Stats, error)
}

// UserCounter 用户数量
type UserCounter interface {
	Count(ctx context.Context) (int64, error)
}

type StatsService interface {
	Stats(ctx context.Context) (*Stats, error)
}

type statsService struct {
	reviews ReviewCounter
	users   UserCounter
	timeout time.Duration
}

func NewStatsService(reviews ReviewCounter, users UserCounter, timeout time.Duration) StatsService {
	return &statsService{reviews: reviews, users: users, timeout: timeout}
}

func (s *statsService) Stats(ctx context.Context) (*Stats, error) {
	const op = "admin.stats"
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rs, err := s.reviews.Stats(ctx)
	if err != nil {
		return nil, apperr.Remote(apperr.KindRepository, op, err)
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, apperr.Remote(apperr.KindRepository, op, err)
	}
	return &Stats{Reviews: rs.Reviews, Replies: rs.Replies, Users: users}, nil
}
