// Package repository implements SQL-backed storage for settings and the activity log.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-settings/internal/domain"
)

// SettingsRepository defines persistence operations for per-user settings rows.
type SettingsRepository interface {
	FindByUserID(ctx context.Context, userID int64) (*domain.UserSettings, error)
	UpdateField(ctx context.Context, userID int64, key domain.SettingKey, value any, at time.Time) error
}

type settingsRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSettingsRepository creates a new SQL-backed settings repository.
func NewSettingsRepository(db *sql.DB, log *slog.Logger) SettingsRepository {
	return &settingsRepository{
		db:  db,
		log: log,
	}
}

// FindByUserID loads the settings row of userID, or domain.ErrSettingsNotFound.
func (r *settingsRepository) FindByUserID(ctx context.Context, userID int64) (*domain.UserSettings, error) {
	const query = `
		SELECT user_id, theme, sidebar_position, sidebar_size,
		       notifications_enabled, email_notifications, task_reminders,
		       due_date_reminder_days, items_per_page, language,
		       date_format, time_format, first_day_of_week, updated_at
		FROM user_settings
		WHERE user_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, userID)

	var (
		s     domain.UserSettings
		theme string
	)
	if err := row.Scan(
		&s.UserID,
		&theme,
		&s.SidebarPosition,
		&s.SidebarSize,
		&s.NotificationsEnabled,
		&s.EmailNotifications,
		&s.TaskReminders,
		&s.DueDateReminderDays,
		&s.ItemsPerPage,
		&s.Language,
		&s.DateFormat,
		&s.TimeFormat,
		&s.FirstDayOfWeek,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettingsNotFound
		}

		if r.log != nil {
			r.log.Error("failed to fetch user settings", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select user settings: %w", err)
	}
	s.Theme = domain.Theme(theme)

	return &s, nil
}

// UpdateField writes one coerced value and the mutation time, creating the row when missing.
func (r *settingsRepository) UpdateField(ctx context.Context, userID int64, key domain.SettingKey, value any, at time.Time) error {
	query, err := statementFor(key)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, userID, value, at.UTC()); err != nil {
		if r.log != nil {
			r.log.Error("failed to update user setting",
				slog.Int64("user_id", userID),
				slog.String("key", string(key)),
				slog.Any("error", err),
			)
		}
		return fmt.Errorf("update setting %s: %w", key, err)
	}

	return nil
}

// statementFor maps every allow-listed key to its fixed upsert statement.
func statementFor(key domain.SettingKey) (string, error) {
	switch key {
	case domain.SettingTheme:
		return `INSERT INTO user_settings (user_id, theme, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET theme = EXCLUDED.theme, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingSidebarPosition:
		return `INSERT INTO user_settings (user_id, sidebar_position, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET sidebar_position = EXCLUDED.sidebar_position, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingSidebarSize:
		return `INSERT INTO user_settings (user_id, sidebar_size, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET sidebar_size = EXCLUDED.sidebar_size, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingNotificationsEnabled:
		return `INSERT INTO user_settings (user_id, notifications_enabled, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET notifications_enabled = EXCLUDED.notifications_enabled, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingEmailNotifications:
		return `INSERT INTO user_settings (user_id, email_notifications, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET email_notifications = EXCLUDED.email_notifications, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingTaskReminders:
		return `INSERT INTO user_settings (user_id, task_reminders, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET task_reminders = EXCLUDED.task_reminders, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingDueDateReminderDays:
		return `INSERT INTO user_settings (user_id, due_date_reminder_days, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET due_date_reminder_days = EXCLUDED.due_date_reminder_days, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingItemsPerPage:
		return `INSERT INTO user_settings (user_id, items_per_page, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET items_per_page = EXCLUDED.items_per_page, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingLanguage:
		return `INSERT INTO user_settings (user_id, language, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET language = EXCLUDED.language, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingDateFormat:
		return `INSERT INTO user_settings (user_id, date_format, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET date_format = EXCLUDED.date_format, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingTimeFormat:
		return `INSERT INTO user_settings (user_id, time_format, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET time_format = EXCLUDED.time_format, updated_at = EXCLUDED.updated_at`, nil
	case domain.SettingFirstDayOfWeek:
		return `INSERT INTO user_settings (user_id, first_day_of_week, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET first_day_of_week = EXCLUDED.first_day_of_week, updated_at = EXCLUDED.updated_at`, nil
	default:
		return "", fmt.Errorf("no statement for setting %q", key)
	}
}
