package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	pruneSchedule  string
	retention      time.Duration
	log            *slog.Logger
}

// NewScheduler creates a scheduler that enqueues activity pruning on pruneSchedule (cron syntax).
func NewScheduler(redisOpt asynq.RedisConnOpt, pruneSchedule string, retention time.Duration, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		pruneSchedule:  pruneSchedule,
		retention:      retention,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	if s.pruneSchedule == "" || s.retention <= 0 {
		return nil
	}

	task, err := NewActivityPruneTask(s.retention)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.pruneSchedule, task); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered activity prune task",
			slog.String("schedule", s.pruneSchedule),
			slog.Duration("retention", s.retention),
		)
	}

	return nil
}

// Start launches the scheduler loop without blocking. Stop it with Shutdown.
func (s *scheduler) Start() error {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
