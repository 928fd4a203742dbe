package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/app"
	"github.com/markdave123-py/Pagewise/internal/config"
	"github.com/markdave123-py/Pagewise/internal/logger"
)

func main() {
	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	for _, w := range cfg.Warnings {
		zl.Warn("config", zap.String("warning", w))
	}

	application, err := app.NewApp(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer application.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- application.Server.Start() }()

	zl.Info("Pagewise is running; DB connected and bootstrapped.",
		zap.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		zap.String("embed_provider", cfg.EmbedProvider),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			zl.Error("server error", zap.Error(err))
		}
	}

	zl.Info("shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("graceful shutdown failed", zap.Error(err))
	}
}
