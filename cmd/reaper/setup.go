package main

import (
	"context"
	"fmt"

	"github.com/yairfalse/reaper/config"
	"github.com/yairfalse/reaper/telemetry"
)

// runtime carries the pieces every subcommand needs.
type runtime struct {
	cfg      *config.Config
	logger   *telemetry.Logger
	shutdown func(context.Context) error
}

// setupRuntime loads config, initializes telemetry, and builds the
// service logger. Callers defer rt.close(ctx).
func setupRuntime(ctx context.Context, service string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    service,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		logger:   telemetry.NewLogger(service),
		shutdown: shutdown,
	}, nil
}

// loadConfigOnly reads config without standing up telemetry, for
// commands that only touch local state.
func loadConfigOnly() (*config.Config, error) {
	return config.Load(configPath)
}

func (rt *runtime) close(ctx context.Context) {
	if rt.shutdown != nil {
		if err := rt.shutdown(ctx); err != nil {
			rt.logger.WithContext(ctx).Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
}
