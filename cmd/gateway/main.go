package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/metafuse/tenant-gateway/internal/config"
	"github.com/metafuse/tenant-gateway/internal/server"
	"github.com/metafuse/tenant-gateway/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

func main() {
	// Load env if it exists
	_ = godotenv.Load()

	boot := newLogger("production")
	cfg, log, err := setup(envOr("METAFUSE_CONFIG", "config.json"), boot)
	if err != nil {
		_ = boot.Sync()
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	logLevel := logger.Warn
	if !cfg.IsProduction() {
		logLevel = logger.Info
	}
	postgres, err := storage.NewPostgres(cfg.Database.URL, log, logLevel)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	log.Info("connected to postgres")

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.GetRedisAddr()))
	}
	defer redis.Close()
	log.Info("connected to redis")

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(cfg, redis, postgres, log, promReg)
	if err != nil {
		log.Fatal("failed to build server", zap.Error(err))
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// setup loads the configuration and builds the service logger. Load errors
// are reported on boot, since the real logger depends on the config.
func setup(path string, boot *zap.Logger) (*config.Config, *zap.Logger, error) {
	cfg, warnings, err := config.Load(path)
	if err != nil {
		boot.Error("failed to load config", zap.String("path", path), zap.Error(err))
		return nil, nil, err
	}

	log := newLogger(cfg.Server.Environment)
	for _, w := range warnings {
		log.Warn("ignoring invalid config value", zap.String("detail", w))
	}
	return cfg, log, nil
}

func newLogger(environment string) *zap.Logger {
	build := zap.NewProduction
	if environment == "development" {
		build = zap.NewDevelopment
	}
	log, err := build()
	if err != nil {
		panic(err)
	}
	return log.With(zap.String("service", "tenant-gateway"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
