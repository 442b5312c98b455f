package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLookupSetting(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		wantKind ValueKind
		wantOK   bool
	}{
		{name: "theme", key: "theme", wantKind: KindTheme, wantOK: true},
		{name: "bool flag", key: "task_reminders", wantKind: KindBool, wantOK: true},
		{name: "int", key: "items_per_page", wantKind: KindInt, wantOK: true},
		{name: "string", key: "language", wantKind: KindString, wantOK: true},
		{name: "unknown", key: "bogus_key", wantOK: false},
		{name: "updated_at is not writable", key: "updated_at", wantOK: false},
		{name: "case sensitive", key: "Theme", wantOK: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, kind, ok := LookupSetting(tc.key)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantKind, kind)
			}
		})
	}
}

func TestSettingKeysCoversAllowList(t *testing.T) {
	keys := SettingKeys()
	assert.Len(t, keys, len(settingKinds))
	for _, key := range keys {
		_, _, ok := LookupSetting(string(key))
		assert.True(t, ok, key)
	}
}

func TestValuesEncodeDecode(t *testing.T) {
	settings := DefaultUserSettings(7)
	settings.Theme = ThemeDark
	settings.ItemsPerPage = 50
	settings.UpdatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	encoded := settings.Values().Encode()
	assert.Equal(t, "dark", encoded["theme"])
	assert.Equal(t, "50", encoded["items_per_page"])
	assert.Equal(t, "1", encoded["notifications_enabled"])
	assert.Equal(t, "2026-01-02T03:04:05Z", encoded[UpdatedAtKey])

	encoded["stray"] = "x"
	decoded := DecodeValues(encoded)
	assert.Equal(t, settings.Values(), decoded)
}

func TestThemeValid(t *testing.T) {
	assert.True(t, ThemeLight.Valid())
	assert.True(t, ThemeDark.Valid())
	assert.True(t, ThemeAuto.Valid())
	assert.False(t, Theme("neon").Valid())
	assert.False(t, Theme("").Valid())
}
