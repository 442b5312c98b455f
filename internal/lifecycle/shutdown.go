package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Shutdown releases the server's resources once the HTTP server has stopped.
//
// Hooks run stage by stage in Stage order; hooks of one stage run concurrently.
// A failing hook does not stop later stages, so every connection still gets closed.
type Shutdown struct {
	mu    sync.Mutex
	hooks []Hook
	log   *slog.Logger
}

// NewShutdown creates an empty coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log}
}

// Register adds fn to stage under name. A nil fn is ignored.
func (s *Shutdown) Register(stage Stage, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, Hook{Stage: stage, Name: name, Fn: fn})
}

// Execute runs every registered hook and returns their failures joined,
// each prefixed with the hook name.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Stage < hooks[j].Stage })

	start := time.Now()
	s.log.Info("releasing resources", slog.Int("hooks", len(hooks)))

	var errs []error
	for i := 0; i < len(hooks); {
		j := i
		for j < len(hooks) && hooks[j].Stage == hooks[i].Stage {
			j++
		}
		errs = append(errs, s.runStage(ctx, hooks[i].Stage, hooks[i:j])...)
		i = j
	}

	s.log.Info("resources released",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("failed", len(errs)),
	)

	return errors.Join(errs...)
}

func (s *Shutdown) runStage(ctx context.Context, stage Stage, hooks []Hook) []error {
	log := s.log.With(slog.String("stage", stage.String()))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, hook := range hooks {
		h := hook
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := h.Fn(ctx); err != nil {
				log.Error("release failed", slog.String("hook", h.Name), slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				mu.Unlock()
				return
			}
			log.Debug("released", slog.String("hook", h.Name))
		}()
	}
	wg.Wait()

	return errs
}
