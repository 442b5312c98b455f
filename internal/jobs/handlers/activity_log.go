// Package handlers contains asynq task handlers.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/himera-settings/internal/jobs"
	"github.com/Proton-105/himera-settings/internal/repository"
)

// ActivityRecordHandler persists activity entries delivered through the queue.
type ActivityRecordHandler struct {
	repo repository.ActivityRepository
	log  *slog.Logger
}

func NewActivityRecordHandler(repo repository.ActivityRepository, log *slog.Logger) *ActivityRecordHandler {
	return &ActivityRecordHandler{repo: repo, log: log}
}

func (h *ActivityRecordHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ActivityRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "activity record: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		}
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.repo.Insert(ctx, payload.Entry); err != nil {
		return err
	}

	if h.log != nil {
		h.log.DebugContext(ctx, "activity recorded",
			slog.Int64("user_id", payload.Entry.UserID),
			slog.String("action", payload.Entry.Action),
			slog.String("key", payload.Entry.Key),
		)
	}

	return nil
}

// ActivityPruneHandler deletes entries older than the retention carried by the task.
type ActivityPruneHandler struct {
	repo repository.ActivityRepository
	log  *slog.Logger
	now  func() time.Time
}

func NewActivityPruneHandler(repo repository.ActivityRepository, log *slog.Logger) *ActivityPruneHandler {
	return &ActivityPruneHandler{repo: repo, log: log, now: time.Now}
}

func (h *ActivityPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ActivityPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Retention <= 0 {
		return fmt.Errorf("retention must be positive: %w", asynq.SkipRetry)
	}

	cutoff := h.now().Add(-payload.Retention)
	deleted, err := h.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "activity log pruned", slog.Int64("deleted", deleted), slog.Time("cutoff", cutoff))
	}

	return nil
}
