package settings

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/Proton-105/himera-settings/internal/activity"
	"github.com/Proton-105/himera-settings/internal/domain"
	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/session"
	"github.com/Proton-105/himera-settings/pkg/metrics"
)

// Shadow is the session-scoped cache the service reads from and writes through.
type Shadow interface {
	Read(ctx context.Context, sess *session.Session) (domain.Values, error)
	WriteThrough(ctx context.Context, sess *session.Session, key domain.SettingKey, value any, updatedAt time.Time) error
	Discard(ctx context.Context, sess *session.Session) error
}

// BatchResult is the outcome of a multi-key mutation.
type BatchResult struct {
	Success  bool
	Updated  []string
	Settings domain.Values
}

// Service provides settings operations for an authenticated session.
type Service struct {
	store    *Store
	shadow   Shadow
	recorder activity.Recorder
	log      *slog.Logger
}

// NewService constructs a new Service instance.
func NewService(store *Store, shadow Shadow, recorder activity.Recorder, log *slog.Logger) *Service {
	if recorder == nil {
		recorder = activity.NopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		shadow:   shadow,
		recorder: recorder,
		log:      log,
	}
}

// Fetch returns the full settings mapping of the session's user.
func (s *Service) Fetch(ctx context.Context, sess *session.Session) (domain.Values, error) {
	values, err := s.shadow.Read(ctx, sess)
	if err != nil {
		s.logError("fetch", sess, err)
		return nil, err
	}
	return values, nil
}

// UpdateKey persists one setting and mirrors it into the session shadow.
func (s *Service) UpdateKey(ctx context.Context, sess *session.Session, key, raw string) (Change, error) {
	change, err := s.store.Update(ctx, sess.UserID, key, raw)
	if err != nil {
		metrics.RecordUpdate(metricKey(key), statusFor(err))
		return Change{}, err
	}
	metrics.RecordUpdate(string(change.Key), "ok")

	if err := s.shadow.WriteThrough(ctx, sess, change.Key, change.Value, change.UpdatedAt); err != nil {
		// the next read repopulates from the store
		s.logError("write_through", sess, err)
		if discardErr := s.shadow.Discard(ctx, sess); discardErr != nil {
			s.logError("discard", sess, discardErr)
		}
	}

	s.recorder.Record(ctx, sess.UserID, domain.ActionSettingsUpdate, string(change.Key), change.Value)

	return change, nil
}

// Apply updates every submitted key independently, in sorted key order.
// Success is true iff at least one key was persisted.
func (s *Service) Apply(ctx context.Context, sess *session.Session, form map[string][]string) (BatchResult, error) {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	updated := make([]string, 0, len(keys))
	for _, key := range keys {
		raw := ""
		if values := form[key]; len(values) > 0 {
			raw = values[0]
		}

		if _, err := s.UpdateKey(ctx, sess, key, raw); err != nil {
			s.log.InfoContext(ctx, "settings key skipped",
				slog.Int64("user_id", sess.UserID),
				slog.String("key", key),
				slog.String("reason", err.Error()),
			)
			continue
		}
		updated = append(updated, key)
	}

	values, err := s.Fetch(ctx, sess)
	if err != nil {
		return BatchResult{}, err
	}

	return BatchResult{
		Success:  len(updated) > 0,
		Updated:  updated,
		Settings: values,
	}, nil
}

// SetTheme validates and persists the theme.
func (s *Service) SetTheme(ctx context.Context, sess *session.Session, theme string) (domain.Theme, error) {
	change, err := s.UpdateKey(ctx, sess, string(domain.SettingTheme), theme)
	if err != nil {
		return "", err
	}
	return domain.Theme(change.Value.(string)), nil
}

// EndSession drops the session's shadow.
func (s *Service) EndSession(ctx context.Context, sess *session.Session) error {
	return s.shadow.Discard(ctx, sess)
}

func (s *Service) logError(operation string, sess *session.Session, err error) {
	if s == nil || s.log == nil || err == nil {
		return
	}

	s.log.Error("settings service operation failed",
		slog.String("operation", operation),
		slog.Int64("user_id", sess.UserID),
		slog.Any("error", err),
	)
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, apperrors.ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, apperrors.ErrStorage):
		return "storage_error"
	default:
		return "error"
	}
}

// metricKey keeps arbitrary client input out of metric labels.
func metricKey(key string) string {
	if _, _, ok := domain.LookupSetting(key); ok {
		return key
	}
	return "unknown"
}
