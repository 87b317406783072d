package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hrplatform/docingest/internal/config"
	"github.com/hrplatform/docingest/internal/database"
	"github.com/hrplatform/docingest/internal/logging"
)

// loadConfig reads configuration and installs the process logger. A --log-level
// flag, when present and set, overrides LOG_LEVEL.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.LogLevel = f.Value.String()
	}

	logger := logging.New(logging.Config{Level: cfg.SlogLevel(), Format: cfg.LogFormat})
	return cfg, logger, nil
}

func getDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}
