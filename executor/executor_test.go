package executor

import (
	"context"
	"database/sql"
	"testing"

	"github.com/fleetdb/branchmigrate"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestExecutor_Apply(t *testing.T) {
	unit := branchmigrate.MigrationUnit{
		ID:         1,
		Name:       "create_users",
		UpScript:   "CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);",
		DownScript: "DROP TABLE users;",
	}

	t.Run("executes the forward script", func(t *testing.T) {
		db := newTestDB(t)

		err := New().Apply(context.Background(), db, unit)
		require.NoError(t, err)
		assert.True(t, tableExists(t, db, "users"))
	})

	t.Run("failing script reports the unit", func(t *testing.T) {
		db := newTestDB(t)
		broken := branchmigrate.MigrationUnit{ID: 2, Name: "broken", UpScript: "CREATE TABEL oops;"}

		err := New().Apply(context.Background(), db, broken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration 2 (broken)")
	})

	t.Run("empty script is an error", func(t *testing.T) {
		db := newTestDB(t)
		empty := branchmigrate.MigrationUnit{ID: 3, Name: "empty", UpScript: "   "}

		err := New().Apply(context.Background(), db, empty)
		assert.Error(t, err)
	})
}

func TestExecutor_Rollback(t *testing.T) {
	unit := branchmigrate.MigrationUnit{
		ID:         1,
		Name:       "create_users",
		UpScript:   "CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);",
		DownScript: "DROP TABLE users;",
	}

	t.Run("backward script is the exact inverse", func(t *testing.T) {
		db := newTestDB(t)
		e := New()

		require.NoError(t, e.Apply(context.Background(), db, unit))
		require.True(t, tableExists(t, db, "users"))

		require.NoError(t, e.Rollback(context.Background(), db, unit))
		assert.False(t, tableExists(t, db, "users"))
	})

	t.Run("failing backward script reports the unit", func(t *testing.T) {
		db := newTestDB(t)
		e := New()

		// Rolling back a unit that was never applied fails.
		err := e.Rollback(context.Background(), db, unit)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backward script of migration 1")
	})
}
