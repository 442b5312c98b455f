// Package activity records user actions to the audit log without blocking the caller.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Proton-105/himera-settings/internal/domain"
	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/jobs"
)

// Recorder accepts activity entries. Implementations never fail the caller.
type Recorder interface {
	Record(ctx context.Context, userID int64, action, key string, value any)
}

// NopRecorder drops every entry.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, int64, string, string, any) {}

// QueueRecorder enqueues entries for the activity worker behind a circuit breaker.
type QueueRecorder struct {
	manager jobs.Manager
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
	now     func() time.Time
}

// NewQueueRecorder creates a recorder publishing through manager.
func NewQueueRecorder(manager jobs.Manager, log *slog.Logger) *QueueRecorder {
	if log == nil {
		log = slog.Default()
	}

	return &QueueRecorder{
		manager: manager,
		breaker: apperrors.NewCircuitBreaker(),
		log:     log,
		now:     time.Now,
	}
}

// Record enqueues the entry; failures are logged at warn and swallowed.
func (r *QueueRecorder) Record(ctx context.Context, userID int64, action, key string, value any) {
	entry := domain.ActivityEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Key:       key,
		Value:     fmt.Sprint(value),
		CreatedAt: r.now().UTC(),
	}

	err := r.breaker.Call(func() error {
		task, err := jobs.NewActivityRecordTask(entry)
		if err != nil {
			return err
		}
		_, err = r.manager.Enqueue(ctx, task)
		return err
	})
	if err != nil {
		r.log.WarnContext(ctx, "activity record dropped",
			slog.Int64("user_id", userID),
			slog.String("action", action),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}
