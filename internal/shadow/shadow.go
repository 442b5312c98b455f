// Package shadow keeps a session-scoped copy of a user's settings in front of the store.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-settings/internal/domain"
	"github.com/Proton-105/himera-settings/internal/session"
	"github.com/Proton-105/himera-settings/pkg/metrics"
)

// minTTL bounds the lifetime of a snapshot whose session is about to expire.
const minTTL = time.Second

// Snapshot is the encoded settings mapping of one session.
type Snapshot struct {
	Values       map[string]string
	CurrentTheme string
}

// Backend stores snapshots keyed by session id.
// Merge only updates an existing snapshot and reports ErrNoSnapshot otherwise.
type Backend interface {
	Load(ctx context.Context, sid string) (*Snapshot, error)
	Save(ctx context.Context, sid string, snap Snapshot, ttl time.Duration) error
	Merge(ctx context.Context, sid string, fields map[string]string, theme string, ttl time.Duration) error
	Discard(ctx context.Context, sid string) error
	Count(ctx context.Context) (int, error)
}

// ErrNoSnapshot is returned by Backend.Load and Backend.Merge when the session holds no snapshot.
var ErrNoSnapshot = errors.New("no settings snapshot for session")

// Loader reads the authoritative settings of a user.
type Loader interface {
	Get(ctx context.Context, userID int64) (*domain.UserSettings, error)
}

// Shadow is the session-scoped read-through, write-through settings cache.
type Shadow struct {
	backend Backend
	loader  Loader
	log     *slog.Logger
	now     func() time.Time
}

// New constructs a Shadow.
func New(backend Backend, loader Loader, log *slog.Logger) *Shadow {
	if log == nil {
		log = slog.Default()
	}

	return &Shadow{
		backend: backend,
		loader:  loader,
		log:     log,
		now:     time.Now,
	}
}

// Read returns the session's snapshot, populating it from the store on first use.
// A user without a persisted row gets the defaults.
func (s *Shadow) Read(ctx context.Context, sess *session.Session) (domain.Values, error) {
	snap, err := s.backend.Load(ctx, sess.ID)
	switch {
	case err == nil:
		metrics.RecordFetch(metrics.SourceShadow)
		return domain.DecodeValues(snap.Values), nil
	case !errors.Is(err, ErrNoSnapshot):
		s.log.Warn("shadow read failed, falling back to store",
			slog.String("session_id", sess.ID),
			slog.Any("error", err),
		)
	}

	return s.populate(ctx, sess)
}

// WriteThrough mirrors a successful store write into the session's snapshot.
// Without a snapshot the shadow is populated from the store, which already holds the write.
func (s *Shadow) WriteThrough(ctx context.Context, sess *session.Session, key domain.SettingKey, value any, updatedAt time.Time) error {
	fields := domain.Values{
		string(key):         value,
		domain.UpdatedAtKey: updatedAt.UTC().Format(time.RFC3339),
	}.Encode()

	theme := ""
	if key == domain.SettingTheme {
		theme = fields[string(key)]
	}

	err := s.backend.Merge(ctx, sess.ID, fields, theme, s.ttl(sess))
	switch {
	case errors.Is(err, ErrNoSnapshot):
		_, err = s.populate(ctx, sess)
		return err
	case err != nil:
		return fmt.Errorf("merge shadow: %w", err)
	}
	return nil
}

// CurrentTheme returns the dedicated theme slot of the session, empty when unset.
func (s *Shadow) CurrentTheme(ctx context.Context, sess *session.Session) (string, error) {
	snap, err := s.backend.Load(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return "", nil
		}
		return "", err
	}
	return snap.CurrentTheme, nil
}

// Discard drops the session's snapshot, typically on logout.
func (s *Shadow) Discard(ctx context.Context, sess *session.Session) error {
	return s.backend.Discard(ctx, sess.ID)
}

// Count reports how many sessions hold a snapshot.
func (s *Shadow) Count(ctx context.Context) (int, error) {
	return s.backend.Count(ctx)
}

func (s *Shadow) populate(ctx context.Context, sess *session.Session) (domain.Values, error) {
	source := metrics.SourceStore
	record, err := s.loader.Get(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrSettingsNotFound) {
			return nil, err
		}
		record = domain.DefaultUserSettings(sess.UserID)
		source = metrics.SourceDefaults
	}
	metrics.RecordFetch(source)

	values := record.Values()
	snap := Snapshot{
		Values:       values.Encode(),
		CurrentTheme: string(record.Theme),
	}

	if err := s.backend.Save(ctx, sess.ID, snap, s.ttl(sess)); err != nil {
		s.log.Warn("shadow populate failed",
			slog.String("session_id", sess.ID),
			slog.Any("error", err),
		)
	}

	return values, nil
}

func (s *Shadow) ttl(sess *session.Session) time.Duration {
	ttl := sess.TTL(s.now())
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}
