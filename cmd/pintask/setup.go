package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/pintask/internal/config"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/platform/memory"
	"github.com/phrazzld/pintask/internal/platform/postgres"
	"github.com/phrazzld/pintask/internal/store"
)

// loadConfig loads configuration and sets up structured logging.
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFrom(opts.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(logger.LoggerConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("completion_mode", cfg.Proximity.CompletionMode))
	return cfg, log, nil
}

// openRepository builds the configured task repository. The returned *sql.DB
// is nil for the memory driver; otherwise the caller must close it.
func openRepository(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	migrate bool,
) (store.TaskRepository, *sql.DB, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, db, "up", log); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		return postgres.NewTaskRepository(db, log), db, nil
	default:
		log.Warn("using in-memory task store; tasks are lost on restart")
		return memory.NewTaskStore(log), nil, nil
	}
}
