// Package settings implements the authoritative settings store and the service built on it.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-settings/internal/domain"
	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/repository"
)

// Change describes one persisted mutation.
type Change struct {
	Key       domain.SettingKey
	Value     any
	UpdatedAt time.Time
}

// Store validates, coerces and persists single setting values.
type Store struct {
	repo repository.SettingsRepository
	log  *slog.Logger
	now  func() time.Time
}

// NewStore constructs a Store over repo.
func NewStore(repo repository.SettingsRepository, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// Get returns the persisted settings of userID.
// domain.ErrSettingsNotFound is passed through; other failures become storage errors.
func (s *Store) Get(ctx context.Context, userID int64) (*domain.UserSettings, error) {
	record, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return nil, err
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	return record, nil
}

// Update coerces raw for key and persists it together with a fresh updated_at.
func (s *Store) Update(ctx context.Context, userID int64, name, raw string) (Change, error) {
	key, kind, ok := domain.LookupSetting(name)
	if !ok {
		return Change{}, apperrors.NewInvalidKeyError(name)
	}

	value, err := Coerce(key, kind, raw)
	if err != nil {
		return Change{}, err
	}

	at := s.now().UTC().Truncate(time.Second)
	if err := s.repo.UpdateField(ctx, userID, key, value, at); err != nil {
		s.log.Error("settings store write failed",
			slog.Int64("user_id", userID),
			slog.String("key", string(key)),
			slog.String("message", err.Error()),
		)
		return Change{}, apperrors.NewDatabaseError(fmt.Errorf("update %s: %w", key, err))
	}

	return Change{Key: key, Value: value, UpdatedAt: at}, nil
}
