package database

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-settings/migrations"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_b.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/0001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/0001_a.down.sql": {Data: []byte("SELECT 1;")},
		"sql/README.md":       {Data: []byte("docs")},
	}

	names, err := ListMigrations(fsys, "sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, names)
}

func TestMigrator_ApplyFS_Embedded(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, testLogger())
	ctx := context.Background()

	applied, err := m.ApplyFS(ctx, migrations.FS, ".")
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	_, err = db.ExecContext(ctx, `INSERT INTO users (id) VALUES (1)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO user_settings (user_id) VALUES (1)`)
	require.NoError(t, err)

	var theme string
	var perPage int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT theme, items_per_page FROM user_settings WHERE user_id = 1`).Scan(&theme, &perPage))
	assert.Equal(t, "light", theme)
	assert.Equal(t, 20, perPage)

	again, err := m.ApplyFS(ctx, migrations.FS, ".")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestMigrator_ApplyFS_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, testLogger())
	ctx := context.Background()

	fsys := fstest.MapFS{
		"0001_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"0002_broken.up.sql": {Data: []byte("CREATE TABLE broken (")},
		"0003_empty.up.sql":  {Data: []byte("   ")},
	}

	applied, err := m.ApplyFS(ctx, fsys, ".")
	assert.ErrorContains(t, err, "0002_broken.up.sql")
	assert.Equal(t, 1, applied)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}
