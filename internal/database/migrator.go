// Package database provides connection setup and schema migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
)

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)
`

// Migrator applies plain .up.sql migrations in lexical order, each at most once.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(db *sql.DB, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{
		db:  db,
		log: log,
		now: time.Now,
	}
}

// ApplyFS runs every pending *.up.sql file found in root of fsys and records it in schema_migrations.
func (m *Migrator) ApplyFS(ctx context.Context, fsys fs.FS, root string) (int, error) {
	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := ListMigrations(fsys, root)
	if err != nil {
		return 0, fmt.Errorf("list migrations in %q: %w", root, err)
	}

	baseLog := m.log.With(slog.String("dir", root))
	if len(names) == 0 {
		baseLog.Info("no .up.sql migrations found")
		return 0, nil
	}

	applied := 0
	for _, name := range names {
		done, err := m.isApplied(ctx, name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return applied, fmt.Errorf("read migration %q: %w", name, err)
		}

		if err := m.applyFile(ctx, baseLog, name, string(data)); err != nil {
			return applied, err
		}
		applied++
	}

	baseLog.Info("migrations applied", slog.Int("count", applied))
	return applied, nil
}

func (m *Migrator) isApplied(ctx context.Context, name string) (bool, error) {
	const query = `SELECT name FROM schema_migrations WHERE name = $1`

	var found string
	err := m.db.QueryRowContext(ctx, query, name).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check migration %q: %w", name, err)
	default:
		return true, nil
	}
}

func (m *Migrator) applyFile(ctx context.Context, baseLog *slog.Logger, name, body string) error {
	const record = `INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)`

	scopedLog := baseLog.With(slog.String("file", name))

	statement := strings.TrimSpace(body)
	if len(statement) == 0 {
		scopedLog.Warn("migration is empty, recording without executing")
	} else {
		scopedLog.Info("applying migration")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %q: %w", name, err)
	}

	if statement != "" {
		if _, execErr := tx.ExecContext(ctx, statement); execErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				scopedLog.Error("rollback error", "error", rbErr)
			}
			return fmt.Errorf("execute migration %q: %w", name, execErr)
		}
	}

	if _, execErr := tx.ExecContext(ctx, record, name, m.now().UTC()); execErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			scopedLog.Error("rollback error", "error", rbErr)
		}
		return fmt.Errorf("record migration %q: %w", name, execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %q: %w", name, commitErr)
	}

	return nil
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, ".up.sql")
}

// ListMigrations returns all .up.sql files in dir in lexical order.
func ListMigrations(dir fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(dir, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isUpMigration(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}
