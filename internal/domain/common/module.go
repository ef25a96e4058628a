package common

import (
	"context"
	"net/http"

	_ "review_board/docs"
	commonHandler "review_board/internal/pkg/common"
	"review_board/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	health := commonHandler.NewHealthHandler(ctx.Config.Feed.RemoteTimeout)
	if ctx.DB != nil {
		health.Add("database", func(c context.Context) error {
			sqlDB, err := ctx.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(c)
		})
	}
	if ctx.Redis != nil {
		health.Add("redis", func(c context.Context) error {
			return ctx.Redis.Ping(c).Err()
		})
	}

	gatherer := ctx.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	setupRoutes(ctx.Router, health, gatherer, ctx.Config.App.Env != "prod")
	return nil
}

func setupRoutes(r *gin.Engine, health *commonHandler.HealthHandler, gatherer prometheus.Gatherer, swagger bool) {
	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	// 首页跳转到评价页
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/reviews")
	})
}
