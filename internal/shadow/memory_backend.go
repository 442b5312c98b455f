package shadow

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryBackend keeps snapshots in process memory. Used when Redis is disabled.
type MemoryBackend struct {
	// mu orders writers so a Merge never interleaves with Save or Discard.
	mu    sync.Mutex
	cache *ttlcache.Cache[string, Snapshot]
}

// NewMemoryBackend creates an in-process snapshot store. Call Start to evict expired entries.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, Snapshot](),
		),
	}
}

// Start runs the expiry loop until Stop is called.
func (b *MemoryBackend) Start() {
	b.cache.Start()
}

// Stop ends the expiry loop.
func (b *MemoryBackend) Stop() {
	b.cache.Stop()
}

func (b *MemoryBackend) Load(_ context.Context, sid string) (*Snapshot, error) {
	item := b.cache.Get(sid)
	if item == nil {
		return nil, ErrNoSnapshot
	}

	snap := clone(item.Value())
	return &snap, nil
}

func (b *MemoryBackend) Save(_ context.Context, sid string, snap Snapshot, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Set(sid, clone(snap), ttl)
	return nil
}

func (b *MemoryBackend) Merge(_ context.Context, sid string, fields map[string]string, theme string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := b.cache.Get(sid)
	if item == nil {
		return ErrNoSnapshot
	}

	snap := clone(item.Value())

	for k, v := range fields {
		snap.Values[k] = v
	}
	if theme != "" {
		snap.CurrentTheme = theme
	}

	b.cache.Set(sid, snap, ttl)
	return nil
}

func (b *MemoryBackend) Discard(_ context.Context, sid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Delete(sid)
	return nil
}

func (b *MemoryBackend) Count(_ context.Context) (int, error) {
	return b.cache.Len(), nil
}

func clone(snap Snapshot) Snapshot {
	values := make(map[string]string, len(snap.Values))
	for k, v := range snap.Values {
		values[k] = v
	}
	return Snapshot{Values: values, CurrentTheme: snap.CurrentTheme}
}
