package registry

import (
	"context"
	"fmt"
	"sort"

	"review_board/internal/pkg/config"
	"review_board/internal/pkg/uploader"
	"review_board/internal/pkg/worker"
	"review_board/pkg/cache"
	"review_board/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 模块间共享的服务名
const (
	ServiceAuth           = "user.auth"
	ServiceResolver       = "user.resolver"
	ServiceUsers          = "user.repository"
	ServiceAuthHandler    = "user.auth_handler"
	ServiceProfileHandler = "user.profile_handler"
	ServiceReviews        = "review.repository"
	ServiceWorkspaces     = "review.workspaces"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	// BaseCtx 服务生命周期，关闭时取消，用于后台协程
	BaseCtx  context.Context
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Cache    cache.CacheService
	Router   *gin.Engine
	Logger   *zap.Logger
	Storage  uploader.Uploader
	Metrics  *metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	Sweeper  *worker.WorkerPool

	services map[string]any
}

// Provide 暴露一个服务给后初始化的模块使用
func (c *ModuleContext) Provide(name string, svc any) {
	if c.services == nil {
		c.services = make(map[string]any)
	}
	c.services[name] = svc
}

// Lookup 获取先初始化的模块暴露的服务
func Lookup[T any](c *ModuleContext, name string) (T, error) {
	var zero T
	svc, ok := c.services[name]
	if !ok {
		return zero, fmt.Errorf("service %q not provided", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %q has type %T", name, svc)
	}
	return typed, nil
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	// 例如：review 模块依赖 user 模块提供的认证服务
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// Ordered 按优先级排序，优先级相同按名称
func Ordered(modules map[string]Module) []Module {
	list := make([]Module, 0, len(modules))
	for _, m := range modules {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority() != list[j].Priority() {
			return list[i].Priority() < list[j].Priority()
		}
		return list[i].Name() < list[j].Name()
	})
	return list
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	for _, module := range Ordered(moduleRegistry) {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
		if ctx.Logger != nil {
			ctx.Logger.Info("module initialized", zap.String("module", module.Name()))
		}
	}
	return nil
}
