package service

import (
	"context"
	"errors"
	"time"

	"review_board/internal/domain/user/model"
	"review_board/internal/domain/user/repository"
	"review_board/pkg/cache"

	"go.uber.org/zap"
)

// 缓存键常量
const (
	ProfileCacheKeyPrefix = "profile:"
	ProfileCacheTTL       = 10 * time.Minute
)

// ProfileStore 读取用户资料；每次请求解析会话都会读资料，因此带缓存
type ProfileStore interface {
	Get(ctx context.Context, id string) (*model.Profile, error)
	Invalidate(ctx context.Context, id string)
}

// CachedProfileStore 带缓存的资料读取
type CachedProfileStore struct {
	repo  repository.UserRepository
	cache cache.CacheService
	log   *zap.Logger
}

// NewCachedProfileStore cache 为空时直接读库
func NewCachedProfileStore(repo repository.UserRepository, c cache.CacheService, log *zap.Logger) *CachedProfileStore {
	return &CachedProfileStore{repo: repo, cache: c, log: log}
}

func profileCacheKey(id string) string {
	return ProfileCacheKeyPrefix + id
}

// Get 获取资料（带缓存）。缓存故障不影响业务逻辑，只记录日志
func (s *CachedProfileStore) Get(ctx context.Context, id string) (*model.Profile, error) {
	if s.cache != nil {
		var profile model.Profile
		err := s.cache.Get(ctx, profileCacheKey(id), &profile)
		if err == nil {
			return &profile, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("profile cache read failed", zap.String("user_id", id), zap.Error(err))
		}
	}

	// 缓存未命中，从数据库获取
	profile, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, profileCacheKey(id), profile, ProfileCacheTTL); err != nil {
			s.log.Warn("profile cache write failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	return profile, nil
}

// Invalidate 资料修改后清除缓存
func (s *CachedProfileStore) Invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, profileCacheKey(id)); err != nil {
		s.log.Warn("profile cache invalidation failed", zap.String("user_id", id), zap.Error(err))
	}
}
