package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-settings/internal/domain"
	apperrors "github.com/Proton-105/himera-settings/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSettingsRepo struct {
	mock.Mock
}

func (m *mockSettingsRepo) FindByUserID(ctx context.Context, userID int64) (*domain.UserSettings, error) {
	args := m.Called(ctx, userID)
	record, _ := args.Get(0).(*domain.UserSettings)
	return record, args.Error(1)
}

func (m *mockSettingsRepo) UpdateField(ctx context.Context, userID int64, key domain.SettingKey, value any, at time.Time) error {
	args := m.Called(ctx, userID, key, value, at)
	return args.Error(0)
}

var fixedNow = time.Date(2026, 4, 1, 9, 30, 15, 500, time.UTC)

func newTestStore(repo *mockSettingsRepo) *Store {
	s := NewStore(repo, testLogger())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestStore_Update(t *testing.T) {
	repo := new(mockSettingsRepo)
	at := fixedNow.Truncate(time.Second)
	repo.On("UpdateField", mock.Anything, int64(42), domain.SettingItemsPerPage, 50, at).Return(nil).Once()

	change, err := newTestStore(repo).Update(context.Background(), 42, "items_per_page", "50")
	require.NoError(t, err)
	assert.Equal(t, Change{Key: domain.SettingItemsPerPage, Value: 50, UpdatedAt: at}, change)
	repo.AssertExpectations(t)
}

func TestStore_UpdateRejectsUnknownKeyWithoutStorageCall(t *testing.T) {
	repo := new(mockSettingsRepo)

	_, err := newTestStore(repo).Update(context.Background(), 42, "is_admin", "1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)
	repo.AssertNotCalled(t, "UpdateField", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_UpdateRejectsInvalidTheme(t *testing.T) {
	repo := new(mockSettingsRepo)

	_, err := newTestStore(repo).Update(context.Background(), 42, "theme", "purple")
	assert.ErrorIs(t, err, apperrors.ErrInvalidValue)
	repo.AssertNotCalled(t, "UpdateField", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_UpdateStorageFailure(t *testing.T) {
	repo := new(mockSettingsRepo)
	repo.On("UpdateField", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("pq: deadlock detected"))

	_, err := newTestStore(repo).Update(context.Background(), 42, "language", "de")
	require.ErrorIs(t, err, apperrors.ErrStorage)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Database error", appErr.UserMessage)
}

func TestStore_Get(t *testing.T) {
	repo := new(mockSettingsRepo)
	repo.On("FindByUserID", mock.Anything, int64(1)).Return(nil, domain.ErrSettingsNotFound)
	repo.On("FindByUserID", mock.Anything, int64(2)).Return(nil, errors.New("timeout"))
	repo.On("FindByUserID", mock.Anything, int64(3)).Return(domain.DefaultUserSettings(3), nil)

	s := newTestStore(repo)
	ctx := context.Background()

	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrSettingsNotFound)

	_, err = s.Get(ctx, 2)
	assert.ErrorIs(t, err, apperrors.ErrStorage)

	record, err := s.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), record.UserID)
}
