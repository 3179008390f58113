package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"upkeep-bknd/internal/cache"
	"upkeep-bknd/internal/config"
	"upkeep-bknd/internal/database"
	"upkeep-bknd/internal/logger"
	"upkeep-bknd/internal/routes"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logr := logger.New(cfg)
	defer logr.Sync()

	db, err := database.New(cfg.DatabaseURL, cfg)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	if cfg.AutoMigrate {
		if err := database.EnsureSchema(startCtx, db); err != nil {
			logr.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	rdb, err := cache.NewRedis(startCtx, cfg.RedisURL)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	if rdb == nil {
		logr.Warn("REDIS_URL not set, search cache and rate limiting are disabled")
	} else {
		defer rdb.Close()
	}

	r, err := routes.NewRouter(db, rdb, cfg, logr)
	if err != nil {
		logr.Fatal("failed to build router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SearchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Info("server started", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logr.Fatal("server forced to shutdown", zap.Error(err))
	}

	logr.Info("server exited gracefully")
}
