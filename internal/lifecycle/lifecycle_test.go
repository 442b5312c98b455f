package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type depsFunc func(ctx context.Context) error

func (f depsFunc) Err(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	var failing atomic.Bool
	p := NewHealth(depsFunc(func(context.Context) error {
		if failing.Load() {
			return errors.New("database: down")
		}
		return nil
	}), testLogger())
	ctx := context.Background()

	assert.NoError(t, p.Liveness(ctx))
	assert.NoError(t, p.Readiness(ctx))

	failing.Store(true)
	assert.EqualError(t, p.Readiness(ctx), "database: down")

	failing.Store(false)
	require.NoError(t, p.Drain(ctx))
	assert.ErrorIs(t, p.Readiness(ctx), ErrDraining)
	assert.NoError(t, p.Liveness(ctx))
}

func TestShutdown_Execute(t *testing.T) {
	s := NewShutdown(testLogger())
	var ran atomic.Int32

	s.Register(StageStorage, "ok", func(context.Context) error { ran.Add(1); return nil })
	s.Register(StageWorkers, "fails", func(context.Context) error { ran.Add(1); return errors.New("flush failed") })
	s.Register(StageClients, "nil", nil)

	err := s.Execute(context.Background())
	assert.EqualError(t, err, "fails: flush failed")
	assert.Equal(t, int32(2), ran.Load())
}

func TestShutdown_StagesRunInOrder(t *testing.T) {
	s := NewShutdown(testLogger())

	var mu sync.Mutex
	var order []Stage
	record := func(stage Stage) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, stage)
			return nil
		}
	}

	s.Register(StageStorage, "database", record(StageStorage))
	s.Register(StageWorkers, "jobs-worker", record(StageWorkers))
	s.Register(StageStorage, "redis", record(StageStorage))
	s.Register(StageClients, "jobs-client", record(StageClients))
	s.Register(StageWorkers, "jobs-scheduler", record(StageWorkers))

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []Stage{StageWorkers, StageWorkers, StageClients, StageStorage, StageStorage}, order)
}

func TestShutdown_FailureDoesNotSkipLaterStages(t *testing.T) {
	s := NewShutdown(testLogger())
	var closed atomic.Bool

	s.Register(StageWorkers, "jobs-worker", func(context.Context) error { return errors.New("stuck") })
	s.Register(StageStorage, "database", func(context.Context) error { closed.Store(true); return nil })

	err := s.Execute(context.Background())
	assert.EqualError(t, err, "jobs-worker: stuck")
	assert.True(t, closed.Load())
}

func TestStage_String(t *testing.T) {
	testCases := []struct {
		stage Stage
		want  string
	}{
		{StageWorkers, "workers"},
		{StageClients, "clients"},
		{StageStorage, "storage"},
		{Stage(42), "unknown"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.stage.String())
		})
	}
}
