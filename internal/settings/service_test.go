package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-settings/internal/domain"
	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/session"
	"github.com/Proton-105/himera-settings/internal/shadow"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, userID int64, action, key string, value any) {
	m.Called(ctx, userID, action, key, value)
}

type serviceFixture struct {
	repo     *mockSettingsRepo
	recorder *mockRecorder
	shadow   *shadow.Shadow
	service  *Service
	sess     *session.Session
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	repo := new(mockSettingsRepo)
	recorder := new(mockRecorder)
	store := newTestStore(repo)
	sh := shadow.New(shadow.NewMemoryBackend(), store, testLogger())

	return &serviceFixture{
		repo:     repo,
		recorder: recorder,
		shadow:   sh,
		service:  NewService(store, sh, recorder, testLogger()),
		sess:     &session.Session{ID: "s1", UserID: 42, ExpiresAt: time.Now().Add(time.Hour)},
	}
}

func TestService_FetchWithoutRowReturnsDefaults(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.On("FindByUserID", mock.Anything, int64(42)).Return(nil, domain.ErrSettingsNotFound).Once()

	values, err := f.service.Fetch(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, "light", values["theme"])
	assert.Equal(t, "en", values["language"])

	_, err = f.service.Fetch(context.Background(), f.sess)
	require.NoError(t, err)
	f.repo.AssertNumberOfCalls(t, "FindByUserID", 1)
}

func TestService_ApplyPartialSuccess(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	at := fixedNow.Truncate(time.Second)

	stored := domain.DefaultUserSettings(42)
	f.repo.On("FindByUserID", mock.Anything, int64(42)).Return(stored, nil).Once()
	f.repo.On("UpdateField", mock.Anything, int64(42), domain.SettingItemsPerPage, 50, at).Return(nil).Once()
	f.repo.On("UpdateField", mock.Anything, int64(42), domain.SettingLanguage, "de", at).Return(errors.New("disk full")).Once()
	f.recorder.On("Record", mock.Anything, int64(42), domain.ActionSettingsUpdate, "items_per_page", 50).Once()

	_, err := f.service.Fetch(ctx, f.sess)
	require.NoError(t, err)

	result, err := f.service.Apply(ctx, f.sess, map[string][]string{
		"items_per_page": {"50"},
		"language":       {"de"},
		"bogus_key":      {"x"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"items_per_page"}, result.Updated)
	assert.Equal(t, 50, result.Settings["items_per_page"])
	assert.Equal(t, "en", result.Settings["language"])
	assert.NotContains(t, result.Settings, "bogus_key")
	assert.Equal(t, at.Format(time.RFC3339), result.Settings[domain.UpdatedAtKey])

	f.repo.AssertExpectations(t)
	f.recorder.AssertExpectations(t)
}

func TestService_ApplyNothingValid(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.On("FindByUserID", mock.Anything, int64(42)).Return(domain.DefaultUserSettings(42), nil)

	result, err := f.service.Apply(context.Background(), f.sess, map[string][]string{
		"password": {"hunter2"},
		"theme":    {"neon"},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotNil(t, result.Updated)
	assert.Empty(t, result.Updated)
	assert.Equal(t, "light", result.Settings["theme"])
	f.recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SetTheme(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	at := fixedNow.Truncate(time.Second)

	f.repo.On("FindByUserID", mock.Anything, int64(42)).Return(domain.DefaultUserSettings(42), nil).Once()
	f.repo.On("UpdateField", mock.Anything, int64(42), domain.SettingTheme, "dark", at).Return(nil).Once()
	f.recorder.On("Record", mock.Anything, int64(42), domain.ActionSettingsUpdate, "theme", "dark").Once()

	_, err := f.service.Fetch(ctx, f.sess)
	require.NoError(t, err)

	theme, err := f.service.SetTheme(ctx, f.sess, "dark")
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, theme)

	values, err := f.service.Fetch(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, "dark", values["theme"])

	current, err := f.shadow.CurrentTheme(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, "dark", current)

	_, err = f.service.SetTheme(ctx, f.sess, "purple")
	assert.ErrorIs(t, err, apperrors.ErrInvalidValue)
	f.repo.AssertExpectations(t)
}

func TestService_EndSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.repo.On("FindByUserID", mock.Anything, int64(42)).Return(domain.DefaultUserSettings(42), nil).Twice()

	_, err := f.service.Fetch(ctx, f.sess)
	require.NoError(t, err)
	require.NoError(t, f.service.EndSession(ctx, f.sess))

	_, err = f.service.Fetch(ctx, f.sess)
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}
