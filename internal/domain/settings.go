// Package domain holds the settings record and the allow-list of recognized keys.
package domain

import (
	"errors"
	"strconv"
	"time"
)

// ErrSettingsNotFound indicates that the user has no persisted settings row yet.
var ErrSettingsNotFound = errors.New("user settings not found")

// Theme is the presentation theme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// Valid reports whether t is one of the supported themes.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeAuto:
		return true
	default:
		return false
	}
}

// SettingKey names a recognized setting column.
type SettingKey string

const (
	SettingTheme                SettingKey = "theme"
	SettingSidebarPosition      SettingKey = "sidebar_position"
	SettingSidebarSize          SettingKey = "sidebar_size"
	SettingNotificationsEnabled SettingKey = "notifications_enabled"
	SettingEmailNotifications   SettingKey = "email_notifications"
	SettingTaskReminders        SettingKey = "task_reminders"
	SettingDueDateReminderDays  SettingKey = "due_date_reminder_days"
	SettingItemsPerPage         SettingKey = "items_per_page"
	SettingLanguage             SettingKey = "language"
	SettingDateFormat           SettingKey = "date_format"
	SettingTimeFormat           SettingKey = "time_format"
	SettingFirstDayOfWeek       SettingKey = "first_day_of_week"
)

// UpdatedAtKey is the mapping key carrying the last mutation time.
const UpdatedAtKey = "updated_at"

// ValueKind is the declared type of a setting.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindInt
	KindTheme
)

var settingKinds = map[SettingKey]ValueKind{
	SettingTheme:                KindTheme,
	SettingSidebarPosition:      KindString,
	SettingSidebarSize:          KindString,
	SettingNotificationsEnabled: KindBool,
	SettingEmailNotifications:   KindBool,
	SettingTaskReminders:        KindBool,
	SettingDueDateReminderDays:  KindInt,
	SettingItemsPerPage:         KindInt,
	SettingLanguage:             KindString,
	SettingDateFormat:           KindString,
	SettingTimeFormat:           KindString,
	SettingFirstDayOfWeek:       KindString,
}

// orderedKeys keeps a stable iteration order for the allow-list.
var orderedKeys = []SettingKey{
	SettingTheme,
	SettingSidebarPosition,
	SettingSidebarSize,
	SettingNotificationsEnabled,
	SettingEmailNotifications,
	SettingTaskReminders,
	SettingDueDateReminderDays,
	SettingItemsPerPage,
	SettingLanguage,
	SettingDateFormat,
	SettingTimeFormat,
	SettingFirstDayOfWeek,
}

// LookupSetting resolves name against the allow-list.
func LookupSetting(name string) (SettingKey, ValueKind, bool) {
	key := SettingKey(name)
	kind, ok := settingKinds[key]
	return key, kind, ok
}

// SettingKeys returns the allow-list in a stable order.
func SettingKeys() []SettingKey {
	return append([]SettingKey(nil), orderedKeys...)
}

// UserSettings is the persisted per-user settings row.
type UserSettings struct {
	UserID               int64
	Theme                Theme
	SidebarPosition      string
	SidebarSize          string
	NotificationsEnabled int
	EmailNotifications   int
	TaskReminders        int
	DueDateReminderDays  int
	ItemsPerPage         int
	Language             string
	DateFormat           string
	TimeFormat           string
	FirstDayOfWeek       string
	UpdatedAt            time.Time
}

// DefaultUserSettings returns the settings a user has before anything is persisted.
func DefaultUserSettings(userID int64) *UserSettings {
	return &UserSettings{
		UserID:               userID,
		Theme:                ThemeLight,
		SidebarPosition:      "left",
		SidebarSize:          "normal",
		NotificationsEnabled: 1,
		EmailNotifications:   1,
		TaskReminders:        1,
		DueDateReminderDays:  1,
		ItemsPerPage:         20,
		Language:             "en",
		DateFormat:           "Y-m-d",
		TimeFormat:           "H:i",
		FirstDayOfWeek:       "monday",
	}
}

// Values flattens the record into the key/value mapping exchanged with clients.
func (s *UserSettings) Values() Values {
	if s == nil {
		return Values{}
	}

	values := Values{
		string(SettingTheme):                string(s.Theme),
		string(SettingSidebarPosition):      s.SidebarPosition,
		string(SettingSidebarSize):          s.SidebarSize,
		string(SettingNotificationsEnabled): s.NotificationsEnabled,
		string(SettingEmailNotifications):   s.EmailNotifications,
		string(SettingTaskReminders):        s.TaskReminders,
		string(SettingDueDateReminderDays):  s.DueDateReminderDays,
		string(SettingItemsPerPage):         s.ItemsPerPage,
		string(SettingLanguage):             s.Language,
		string(SettingDateFormat):           s.DateFormat,
		string(SettingTimeFormat):           s.TimeFormat,
		string(SettingFirstDayOfWeek):       s.FirstDayOfWeek,
	}
	if !s.UpdatedAt.IsZero() {
		values[UpdatedAtKey] = s.UpdatedAt.UTC().Format(time.RFC3339)
	}

	return values
}

// Values is a settings mapping: strings for string and theme keys, ints for bool and int keys.
type Values map[string]any

// Encode renders every value as a string for storage in string-only caches.
func (v Values) Encode() map[string]string {
	out := make(map[string]string, len(v))
	for key, value := range v {
		switch typed := value.(type) {
		case string:
			out[key] = typed
		case int:
			out[key] = strconv.Itoa(typed)
		case int64:
			out[key] = strconv.FormatInt(typed, 10)
		case Theme:
			out[key] = string(typed)
		}
	}
	return out
}

// DecodeValues restores typed values from their string encoding.
// Keys outside the allow-list are dropped, except updated_at.
func DecodeValues(raw map[string]string) Values {
	values := make(Values, len(raw))
	for name, encoded := range raw {
		if name == UpdatedAtKey {
			values[name] = encoded
			continue
		}

		_, kind, ok := LookupSetting(name)
		if !ok {
			continue
		}

		switch kind {
		case KindBool, KindInt:
			n, err := strconv.Atoi(encoded)
			if err != nil {
				n = 0
			}
			values[name] = n
		default:
			values[name] = encoded
		}
	}
	return values
}
