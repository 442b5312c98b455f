package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// postgres driver
	_ "github.com/lib/pq"

	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/pkg/config"
)

// Open connects to PostgreSQL, applies pool limits and waits for the first successful ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = apperrors.WithRetry(ctx, func() error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			if log != nil {
				log.Warn("database ping failed", slog.String("host", cfg.Host), slog.Any("error", pingErr))
			}
			return apperrors.NewDatabaseError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
