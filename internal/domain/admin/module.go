package admin

import (
	"review_board/internal/domain/admin/handler"
	"review_board/internal/domain/admin/service"
	reviewrepo "review_board/internal/domain/review/repository"
	"review_board/internal/domain/review/workspace"
	userrepo "review_board/internal/domain/user/repository"
	"review_board/internal/pkg/middleware"
	"review_board/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// AdminModule 管理后台
type AdminModule struct{}

func init() {
	registry.Register(&AdminModule{})
}

func (m *AdminModule) Name() string {
	return "admin"
}

func (m *AdminModule) Priority() int {
	// 依赖 review 模块的工作区
	return 20
}

func (m *AdminModule) Init(ctx *registry.ModuleContext) error {
	resolver, err := registry.Lookup[middleware.SessionResolver](ctx, registry.ServiceResolver)
	if err != nil {
		return err
	}
	users, err := registry.Lookup[userrepo.UserRepository](ctx, registry.ServiceUsers)
	if err != nil {
		return err
	}
	reviews, err := registry.Lookup[reviewrepo.ReviewRepository](ctx, registry.ServiceReviews)
	if err != nil {
		return err
	}
	workspaces, err := registry.Lookup[*workspace.Registry](ctx, registry.ServiceWorkspaces)
	if err != nil {
		return err
	}

	stats := service.NewStatsService(reviews, users, ctx.Config.Feed.RemoteTimeout)
	setupRoutes(ctx.Router, handler.NewAdminHandler(stats, workspaces), resolver)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.AdminHandler, resolver middleware.SessionResolver) {
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(resolver), middleware.AdminMiddleware())
	{
		admin.GET("/stats", h.Stats)
		admin.POST("/reviews/:id/replies", h.Reply)
		admin.DELETE("/reviews/:id", h.DeleteReview)
		admin.DELETE("/replies/:id", h.DeleteReply)
	}
}
