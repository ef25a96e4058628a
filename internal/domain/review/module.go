package review

import (
	"context"
	"time"

	"review_board/internal/domain/review/handler"
	"review_board/internal/domain/review/repository"
	"review_board/internal/domain/review/session"
	"review_board/internal/domain/review/view"
	"review_board/internal/domain/review/workspace"
	userhandler "review_board/internal/domain/user/handler"
	userservice "review_board/internal/domain/user/service"
	"review_board/internal/pkg/middleware"
	"review_board/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sweepInterval 空闲工作区回收周期
const sweepInterval = time.Minute

// ReviewModule 评价流模块
type ReviewModule struct{}

func init() {
	registry.Register(&ReviewModule{})
}

func (m *ReviewModule) Name() string {
	return "review"
}

func (m *ReviewModule) Priority() int {
	return 10
}

func (m *ReviewModule) Init(ctx *registry.ModuleContext) error {
	auth, err := registry.Lookup[userservice.AuthService](ctx, registry.ServiceAuth)
	if err != nil {
		return err
	}
	resolver, err := registry.Lookup[middleware.SessionResolver](ctx, registry.ServiceResolver)
	if err != nil {
		return err
	}
	log := ctx.Logger.Named("review")

	// 1. 依赖注入
	store := repository.NewReviewRepository(ctx.DB)
	cfg := workspace.Config{
		Store:   store,
		Storage: ctx.Storage,
		Sources: func(token string) session.Source { return newAuthSource(auth, token) },
		Log:     log,
		Metrics: ctx.Metrics,
		Timeout: ctx.Config.Feed.RemoteTimeout,
		IdleTTL: ctx.Config.Feed.WorkspaceIdleTTL,
		Now:     time.Now,
	}
	if ctx.Sweeper != nil {
		cfg.Orphans = ctx.Sweeper
	}
	workspaces := workspace.NewRegistry(cfg)
	feedHandler := handler.NewFeedHandler(workspaces, view.MustRenderer(), log)

	hookSessions(ctx, workspaces, log)
	if ctx.BaseCtx != nil && cfg.IdleTTL > 0 {
		go workspaces.Run(ctx.BaseCtx, sweepInterval)
	}

	ctx.Provide(registry.ServiceReviews, store)
	ctx.Provide(registry.ServiceWorkspaces, workspaces)

	// 2. 路由注册
	setupRoutes(ctx.Router, feedHandler, resolver)
	return nil
}

// hookSessions 登出时丢弃工作区，资料修改后重新解析身份
func hookSessions(ctx *registry.ModuleContext, workspaces *workspace.Registry, log *zap.Logger) {
	if h, err := registry.Lookup[*userhandler.AuthHandler](ctx, registry.ServiceAuthHandler); err == nil {
		h.OnLogout(func(_ context.Context, token string) {
			workspaces.Drop(token)
		})
	}
	if h, err := registry.Lookup[*userhandler.ProfileHandler](ctx, registry.ServiceProfileHandler); err == nil {
		h.OnChange(func(c context.Context, token string) {
			ws, ok := workspaces.Peek(token)
			if !ok {
				return
			}
			ws.Session.Invalidate()
			if err := ws.Feed.Refresh(c); err != nil {
				log.Warn("refresh after profile change failed", zap.Error(err))
			}
		})
	}
}

func setupRoutes(r *gin.Engine, h *handler.FeedHandler, resolver middleware.SessionResolver) {
	// 访客可浏览
	public := r.Group("")
	public.Use(middleware.OptionalAuth(resolver))
	{
		public.GET("/reviews", h.Page)
		public.GET("/api/feed", h.GetFeed)
		public.POST("/api/feed/refresh", h.Refresh)
	}

	// 写操作需要登录
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(resolver))
	{
		api.POST("/reviews", h.CreateReview)
		api.PUT("/reviews/:id", h.UpdateReview)
		api.DELETE("/reviews/:id", h.DeleteReview)
		api.POST("/reviews/:id/replies", h.CreateReply)
		api.POST("/reviews/:id/reactions", h.ToggleReaction)
		api.DELETE("/replies/:id", h.DeleteReply)

		api.GET("/editor", h.GetEditor)
		api.POST("/editor/new", h.OpenNew)
		api.POST("/editor/edit/:id", h.OpenEdit)
		api.PUT("/editor", h.Stage)
		api.POST("/editor/image", h.AttachImage)
		api.DELETE("/editor/image", h.RemoveImage)
		api.POST("/editor/submit", h.Submit)
		api.DELETE("/editor", h.Cancel)
	}
}
