package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/bootstrap"
	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start pipeline", zap.Error(err))
	}
	defer rt.Close()

	if err := rt.Serve(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("shut down cleanly")
}
