package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/bootstrap"
	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/observability"
)

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if rootFlags.logLevel != "" {
		cfg.Logger.Level = rootFlags.logLevel
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// withRuntime builds the pipeline, runs fn and releases connections.
func withRuntime(ctx context.Context, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer rt.Close()
	return fn(ctx, rt)
}
