package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	lockTTL      = 30 * time.Second
	pollInterval = 100 * time.Millisecond
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

// Operation produces the response bytes to remember for a key.
type Operation func(ctx context.Context) ([]byte, error)

type Result struct {
	Response  []byte
	FromCache bool
}

type Manager interface {
	Execute(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fn Operation,
	) (*Result, error)
}

type manager struct {
	store Store
	log   *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store: store,
		log:   log,
	}
}

// Execute runs fn once per key. Completed responses are replayed until ttl expires;
// a concurrent request with the same key gets ErrRequestInProgress.
// A failed fn leaves no record so the client may retry.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		locked, err := m.store.Lock(ctx, key, lockTTL)
		if err != nil {
			return nil, err
		}
		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		switch {
		case record == nil:
			// lock holder has not written its record yet
		case record.Status == StatusProcessing:
			return nil, ErrRequestInProgress
		case record.Status == StatusCompleted:
			return &Result{Response: record.Response, FromCache: true}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	existing, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == StatusCompleted {
		return &Result{Response: existing.Response, FromCache: true}, nil
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, lockTTL); err != nil {
		return nil, err
	}

	response, err := fn(ctx)
	if err != nil {
		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.log.Warn("failed to clear idempotency record", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: response}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: response, FromCache: false}, nil
}
