package lifecycle

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// HealthChecker answers the liveness and readiness endpoints.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// DependencyChecker reports the combined state of external dependencies.
type DependencyChecker interface {
	Err(ctx context.Context) error
}

// Health answers liveness unconditionally and readiness from the dependency checks.
// Readiness fails once draining has started.
type Health struct {
	deps     DependencyChecker
	draining atomic.Bool
	log      *slog.Logger
}

// NewHealth creates a Health reporting on deps.
func NewHealth(deps DependencyChecker, log *slog.Logger) *Health {
	if log == nil {
		log = slog.Default()
	}
	return &Health{deps: deps, log: log}
}

// Liveness reports that the process is serving.
func (p *Health) Liveness(ctx context.Context) error {
	p.log.DebugContext(ctx, "liveness check called")
	return nil
}

// Readiness reports whether the service can take traffic.
func (p *Health) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrDraining
	}
	if p.deps == nil {
		return nil
	}

	if err := p.deps.Err(ctx); err != nil {
		p.log.WarnContext(ctx, "readiness check failed", slog.Any("error", err))
		return err
	}
	return nil
}

// Drain marks the service as not ready so load balancers stop routing to it.
func (p *Health) Drain(context.Context) error {
	p.draining.Store(true)
	return nil
}
