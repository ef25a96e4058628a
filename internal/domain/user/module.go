package user

import (
	"time"

	"review_board/internal/domain/user/handler"
	"review_board/internal/domain/user/repository"
	"review_board/internal/domain/user/service"
	"review_board/internal/pkg/middleware"
	"review_board/internal/pkg/otp"
	"review_board/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// UserModule 账号与资料模块
type UserModule struct{}

func init() {
	// 自动注册模块
	registry.Register(&UserModule{})
}

func (m *UserModule) Name() string {
	return "user"
}

func (m *UserModule) Priority() int {
	// 其他模块依赖它提供的认证服务
	return 1
}

func (m *UserModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config
	log := ctx.Logger.Named("user")

	// 1. 依赖注入
	userRepo := repository.NewUserRepository(ctx.DB)
	profiles := service.NewCachedProfileStore(userRepo, ctx.Cache, log)
	otpService := otp.NewOTPService(ctx.Cache, log, cfg.App.TestResetCode)
	authService := service.NewAuthService(userRepo, profiles, otpService, ctx.Cache, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		TokenTTL: time.Duration(cfg.JWT.Expire) * time.Hour,
	}, log)
	profileService := service.NewProfileService(userRepo, profiles, ctx.Storage, log)
	resolver := service.NewPrincipalResolver(authService)

	authHandler := handler.NewAuthHandler(authService, cfg.App.Env == "prod")
	profileHandler := handler.NewProfileHandler(profileService)

	ctx.Provide(registry.ServiceAuth, authService)
	ctx.Provide(registry.ServiceResolver, middleware.SessionResolver(resolver))
	ctx.Provide(registry.ServiceUsers, userRepo)
	ctx.Provide(registry.ServiceAuthHandler, authHandler)
	ctx.Provide(registry.ServiceProfileHandler, profileHandler)

	// 2. 路由注册
	setupRoutes(ctx.Router, authHandler, profileHandler, resolver)

	return nil
}

func setupRoutes(r *gin.Engine, auth *handler.AuthHandler, profile *handler.ProfileHandler, resolver middleware.SessionResolver) {
	// 公开路由
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup", auth.SignUp)
		authGroup.POST("/login", auth.Login)
		authGroup.POST("/password-reset", auth.RequestPasswordReset)
		authGroup.POST("/password-reset/confirm", auth.ConfirmPasswordReset)
		authGroup.POST("/logout", middleware.AuthMiddleware(resolver), auth.Logout)
	}

	// 受保护的路由
	profileGroup := r.Group("/api/profile")
	profileGroup.Use(middleware.AuthMiddleware(resolver))
	{
		profileGroup.GET("", profile.GetProfile)
		profileGroup.PUT("", profile.UpdateUsername)
		profileGroup.POST("/avatar", profile.UploadAvatar)
		profileGroup.PUT("/password", profile.ChangePassword)
	}
}
