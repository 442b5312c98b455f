package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-settings/internal/domain"
)

// ActivityRepository persists the audit trail written by the activity worker.
type ActivityRepository interface {
	Insert(ctx context.Context, entry domain.ActivityEntry) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type activityRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewActivityRepository creates a new SQL-backed activity repository.
func NewActivityRepository(db *sql.DB, log *slog.Logger) ActivityRepository {
	return &activityRepository{
		db:  db,
		log: log,
	}
}

// Insert stores entry. Replayed deliveries with the same id are ignored.
func (r *activityRepository) Insert(ctx context.Context, entry domain.ActivityEntry) error {
	const query = `
		INSERT INTO activity_log (id, user_id, action, setting_key, setting_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Key,
		entry.Value,
		entry.CreatedAt.UTC(),
	); err != nil {
		if r.log != nil {
			r.log.Error("failed to insert activity entry", slog.Int64("user_id", entry.UserID), slog.Any("error", err))
		}
		return fmt.Errorf("insert activity entry: %w", err)
	}

	return nil
}

// DeleteOlderThan removes entries created before cutoff and reports how many were deleted.
func (r *activityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM activity_log WHERE created_at < $1`

	res, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune activity log: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune activity log: %w", err)
	}

	return n, nil
}
