package main

import (
	"errors"
	"flag"

	"review_board/internal/pkg/config"
	"review_board/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("path", "migrations", "migration files directory")
	down := flag.Bool("down", false, "roll back all migrations")
	flag.Parse()

	config.LoadConfig()
	cfg := config.GlobalConfig
	log, err := logger.Init(cfg.App.Env, cfg.App.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	m, err := migrate.New("file://"+*dir, cfg.Database.URL())
	if err != nil {
		log.Fatal("open migrations failed", zap.Error(err))
	}
	defer m.Close()

	if *down {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("migrate down failed", zap.Error(err))
		}
		log.Info("migrations rolled back")
		return
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if !errors.As(err, &dirty) {
			log.Fatal("migrate up failed", zap.Error(err))
		}
		// 上次迁移中途失败：回退到失败前的版本后重试
		log.Warn("database is dirty, forcing previous version", zap.Int("version", dirty.Version))
		if err := m.Force(dirty.Version - 1); err != nil {
			log.Fatal("force version failed", zap.Error(err))
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("migrate up failed", zap.Error(err))
		}
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatal("read version failed", zap.Error(err))
	}
	log.Info("migration successful", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
