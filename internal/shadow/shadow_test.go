package shadow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-settings/internal/domain"
	"github.com/Proton-105/himera-settings/internal/session"
	appredis "github.com/Proton-105/himera-settings/pkg/redis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLoader struct {
	record *domain.UserSettings
	err    error
	calls  int
}

func (l *stubLoader) Get(context.Context, int64) (*domain.UserSettings, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	copied := *l.record
	return &copied, nil
}

func testSession() *session.Session {
	return &session.Session{ID: "sess-1", UserID: 42, ExpiresAt: time.Now().Add(time.Hour)}
}

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisBackend(appredis.NewMetricsClient(&appredis.Client{Client: rdb})), mr
}

func backends(t *testing.T) map[string]Backend {
	redisBackend, _ := newRedisBackend(t)
	return map[string]Backend{
		"redis":  redisBackend,
		"memory": NewMemoryBackend(),
	}
}

func TestShadow_ReadThroughCachesStoreRecord(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			record := domain.DefaultUserSettings(42)
			record.Theme = domain.ThemeDark
			record.ItemsPerPage = 50
			loader := &stubLoader{record: record}
			s := New(backend, loader, testLogger())
			ctx := context.Background()

			first, err := s.Read(ctx, testSession())
			require.NoError(t, err)
			assert.Equal(t, "dark", first["theme"])
			assert.Equal(t, 50, first["items_per_page"])

			second, err := s.Read(ctx, testSession())
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Equal(t, 1, loader.calls)

			theme, err := s.CurrentTheme(ctx, testSession())
			require.NoError(t, err)
			assert.Equal(t, "dark", theme)
		})
	}
}

func TestShadow_ReadWithoutRowUsesDefaults(t *testing.T) {
	loader := &stubLoader{err: domain.ErrSettingsNotFound}
	s := New(NewMemoryBackend(), loader, testLogger())

	values, err := s.Read(context.Background(), testSession())
	require.NoError(t, err)
	assert.Equal(t, "light", values["theme"])
	assert.Equal(t, 20, values["items_per_page"])
	assert.Equal(t, 1, values["notifications_enabled"])
	assert.NotContains(t, values, domain.UpdatedAtKey)
}

func TestShadow_ReadPropagatesStoreFailure(t *testing.T) {
	loader := &stubLoader{err: errors.New("connection refused")}
	s := New(NewMemoryBackend(), loader, testLogger())

	_, err := s.Read(context.Background(), testSession())
	assert.Error(t, err)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestShadow_WriteThroughKeepsThemeSlotsEqual(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			loader := &stubLoader{record: domain.DefaultUserSettings(42)}
			s := New(backend, loader, testLogger())
			ctx := context.Background()
			sess := testSession()
			at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

			_, err := s.Read(ctx, sess)
			require.NoError(t, err)

			require.NoError(t, s.WriteThrough(ctx, sess, domain.SettingTheme, "auto", at))
			require.NoError(t, s.WriteThrough(ctx, sess, domain.SettingItemsPerPage, 100, at))

			values, err := s.Read(ctx, sess)
			require.NoError(t, err)
			assert.Equal(t, "auto", values["theme"])
			assert.Equal(t, 100, values["items_per_page"])
			assert.Equal(t, "2026-05-01T12:00:00Z", values[domain.UpdatedAtKey])

			theme, err := s.CurrentTheme(ctx, sess)
			require.NoError(t, err)
			assert.Equal(t, values["theme"], theme)
			assert.Equal(t, 1, loader.calls)
		})
	}
}

func TestShadow_WriteThroughWithoutSnapshotPopulatesFromStore(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			record := domain.DefaultUserSettings(42)
			record.Language = "de"
			loader := &stubLoader{record: record}
			s := New(backend, loader, testLogger())
			ctx := context.Background()

			require.NoError(t, s.WriteThrough(ctx, testSession(), domain.SettingLanguage, "de", time.Now()))
			assert.Equal(t, 1, loader.calls)

			values, err := s.Read(ctx, testSession())
			require.NoError(t, err)
			assert.Len(t, values, len(domain.SettingKeys()))
			assert.Equal(t, "de", values["language"])
		})
	}
}

func TestShadow_WriteThroughAfterSnapshotGoneRepopulates(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			record := domain.DefaultUserSettings(42)
			loader := &stubLoader{record: record}
			s := New(backend, loader, testLogger())
			ctx := context.Background()
			sess := testSession()

			_, err := s.Read(ctx, sess)
			require.NoError(t, err)
			require.NoError(t, backend.Discard(ctx, sess.ID))

			record.ItemsPerPage = 75
			require.NoError(t, s.WriteThrough(ctx, sess, domain.SettingItemsPerPage, 75, time.Now()))
			assert.Equal(t, 2, loader.calls)

			snap, err := backend.Load(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, "light", snap.CurrentTheme)
			assert.Equal(t, "75", snap.Values["items_per_page"])
			assert.Equal(t, "light", snap.Values["theme"])
			assert.Contains(t, snap.Values, "language")
		})
	}
}

func TestBackend_MergeWithoutSnapshot(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := backend.Merge(ctx, "gone", map[string]string{"theme": "dark"}, "dark", time.Minute)
			assert.ErrorIs(t, err, ErrNoSnapshot)

			_, err = backend.Load(ctx, "gone")
			assert.ErrorIs(t, err, ErrNoSnapshot)

			count, err := backend.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestRedisBackend_MergeAfterExpiryWritesNothing(t *testing.T) {
	backend, mr := newRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "sess-1", Snapshot{Values: map[string]string{"theme": "light"}, CurrentTheme: "light"}, time.Minute))
	require.NoError(t, backend.Merge(ctx, "sess-1", map[string]string{"language": "fr"}, "", 2*time.Minute))
	assert.Equal(t, "fr", mr.HGet("shadow:sess-1", "language"))
	assert.Equal(t, 2*time.Minute, mr.TTL("shadow:sess-1"))
	assert.Equal(t, 2*time.Minute, mr.TTL("shadow:sess-1:theme"))

	mr.FastForward(3 * time.Minute)

	err := backend.Merge(ctx, "sess-1", map[string]string{"theme": "dark"}, "dark", time.Minute)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.False(t, mr.Exists("shadow:sess-1"))
	assert.False(t, mr.Exists("shadow:sess-1:theme"))
}

func TestShadow_Discard(t *testing.T) {
	backend, mr := newRedisBackend(t)
	loader := &stubLoader{record: domain.DefaultUserSettings(42)}
	s := New(backend, loader, testLogger())
	ctx := context.Background()

	_, err := s.Read(ctx, testSession())
	require.NoError(t, err)
	assert.True(t, mr.Exists("shadow:sess-1"))
	assert.True(t, mr.Exists("shadow:sess-1:theme"))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.Discard(ctx, testSession()))
	assert.False(t, mr.Exists("shadow:sess-1"))
	assert.False(t, mr.Exists("shadow:sess-1:theme"))
}

func TestRedisBackend_SnapshotExpiresWithSession(t *testing.T) {
	backend, mr := newRedisBackend(t)
	s := New(backend, &stubLoader{record: domain.DefaultUserSettings(42)}, testLogger())
	sess := &session.Session{ID: "short", UserID: 42, ExpiresAt: time.Now().Add(10 * time.Minute)}

	_, err := s.Read(context.Background(), sess)
	require.NoError(t, err)

	ttl := mr.TTL("shadow:short")
	assert.Greater(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 10*time.Minute)

	mr.FastForward(11 * time.Minute)
	assert.False(t, mr.Exists("shadow:short"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "shadow:a_b_", snapshotKey("a:b*"))
}
