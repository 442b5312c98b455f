// Package logger builds the structured slog logger used across the service.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/himera-settings/pkg/config"
)

// level is shared by every handler built by New so SetLevel can adjust it at runtime.
var level = new(slog.LevelVar)

// New creates a logger according to cfg: JSON or text output to stdout, an optional
// rotating file, sensitive attribute masking and Sentry forwarding of errors.
func New(cfg config.Config) *slog.Logger {
	SetLevel(cfg.Logger.Level)

	var out io.Writer = os.Stdout
	if cfg.Logger.File.Enabled && cfg.Logger.File.Path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Logger.File.Path,
			MaxSize:    cfg.Logger.File.MaxSizeMB,
			MaxBackups: cfg.Logger.File.MaxBackups,
			MaxAge:     cfg.Logger.File.MaxAgeDays,
			Compress:   cfg.Logger.File.Compress,
		})
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AppEnv == "development"}

	var base slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}

	handler := base
	if cfg.Sentry.Enabled {
		handler = slogmulti.Fanout(
			base,
			slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
		)
	}

	return slog.New(NewMaskingHandler(handler)).With(slog.String("env", cfg.AppEnv))
}

// SetLevel changes the minimum level of every logger created by New.
// Unknown names fall back to info.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// InitSentry configures the global Sentry client when enabled.
func InitSentry(cfg config.Config) error {
	if !cfg.Sentry.Enabled {
		return nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.AppEnv,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
	}); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}

	return nil
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
