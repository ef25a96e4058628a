package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"review_board/internal/pkg/config"
	"review_board/internal/pkg/middleware"
	"review_board/internal/pkg/registry"
	"review_board/internal/pkg/uploader"
	"review_board/internal/pkg/worker"
	"review_board/pkg/cache"
	"review_board/pkg/database"
	"review_board/pkg/logger"
	"review_board/pkg/metrics"

	// 各业务模块在 init 中注册自己
	_ "review_board/internal/domain/admin"
	_ "review_board/internal/domain/common"
	_ "review_board/internal/domain/review"
	_ "review_board/internal/domain/user"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// @title Review Board API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	config.LoadConfig()
	cfg := &config.GlobalConfig

	log, err := logger.Init(cfg.App.Env, cfg.App.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		log.Fatal("redis init failed", zap.Error(err))
	}
	defer rdb.Close()

	storage, err := uploader.New(cfg)
	if err != nil {
		log.Fatal("object storage init failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewMetricsCollector(reg)

	sweeper := worker.NewWorkerPool(storage, cfg.Feed.OrphanWorkers, 256, logger.Named("orphan"), collector)
	sweeper.Start()

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Trace-ID"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware(logger.Named("http")))
	r.Use(middleware.MetricsMiddleware(collector))
	r.Use(middleware.RateLimitMiddleware(limiter))

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := &registry.ModuleContext{
		BaseCtx:  baseCtx,
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Cache:    cache.NewRedisCache(rdb, "review_board:"),
		Router:   r,
		Logger:   log,
		Storage:  storage,
		Metrics:  collector,
		Gatherer: reg,
		Sweeper:  sweeper,
	}
	if err := registry.InitModules(ctx); err != nil {
		log.Fatal("module init failed", zap.Error(err))
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-baseCtx.Done():
				return
			case <-ticker.C:
				if n := limiter.Cleanup(10 * time.Minute); n > 0 {
					log.Debug("rate limiters evicted", zap.Int("count", n))
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	cancel()
	sweeper.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server exited")
}
