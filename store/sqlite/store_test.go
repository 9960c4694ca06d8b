package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/fleetdb/branchmigrate"
	"github.com/fleetdb/branchmigrate/store"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// An in-memory database lives in its connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	require.NoError(t, s.Init(context.Background()))
	return s, db
}

func TestStore_Get(t *testing.T) {
	t.Run("unknown branch gets a fresh pending record", func(t *testing.T) {
		s, _ := newTestStore(t)

		status, err := s.Get(context.Background(), "branch-1")
		require.NoError(t, err)
		assert.Equal(t, "branch-1", status.BranchID)
		assert.Equal(t, branchmigrate.StatePending, status.State)
		assert.Empty(t, status.Applied)
	})

	t.Run("saved record round-trips", func(t *testing.T) {
		s, _ := newTestStore(t)

		attempt := time.Now().UTC().Truncate(time.Millisecond)
		saved := branchmigrate.BranchMigrationStatus{
			BranchID:      "branch-1",
			Applied:       []int64{1, 2, 3},
			LastApplied:   3,
			LastAttemptAt: attempt,
			LastError:     "",
			State:         branchmigrate.StateCompleted,
		}
		require.NoError(t, s.Save(context.Background(), saved))

		got, err := s.Get(context.Background(), "branch-1")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, got.Applied)
		assert.Equal(t, int64(3), got.LastApplied)
		assert.Equal(t, attempt, got.LastAttemptAt)
		assert.Equal(t, branchmigrate.StateCompleted, got.State)
	})

	t.Run("corrupt applied list is reported", func(t *testing.T) {
		s, db := newTestStore(t)

		_, err := db.ExecContext(context.Background(),
			"INSERT INTO branch_migration_status (branch_id, applied_raw, last_applied, last_attempt_at, last_error, state) VALUES (?, ?, 0, 0, '', 'pending')",
			"branch-1", "not json")
		require.NoError(t, err)

		_, err = s.Get(context.Background(), "branch-1")
		assert.ErrorIs(t, err, store.ErrCorruptRecord)
	})
}

func TestStore_Save(t *testing.T) {
	t.Run("replaces the existing row", func(t *testing.T) {
		s, _ := newTestStore(t)

		require.NoError(t, s.Save(context.Background(), branchmigrate.BranchMigrationStatus{
			BranchID: "branch-1",
			State:    branchmigrate.StateInProgress,
		}))
		require.NoError(t, s.Save(context.Background(), branchmigrate.BranchMigrationStatus{
			BranchID:    "branch-1",
			Applied:     []int64{1},
			LastApplied: 1,
			State:       branchmigrate.StateFailed,
			LastError:   "migration 2 (create_orders) failed: boom",
		}))

		got, err := s.Get(context.Background(), "branch-1")
		require.NoError(t, err)
		assert.Equal(t, branchmigrate.StateFailed, got.State)
		assert.Equal(t, []int64{1}, got.Applied)
		assert.Contains(t, got.LastError, "create_orders")
	})

	t.Run("nil applied list is stored as empty", func(t *testing.T) {
		s, _ := newTestStore(t)

		require.NoError(t, s.Save(context.Background(), branchmigrate.BranchMigrationStatus{
			BranchID: "branch-1",
			State:    branchmigrate.StatePending,
		}))

		got, err := s.Get(context.Background(), "branch-1")
		require.NoError(t, err)
		assert.Empty(t, got.Applied)
	})
}

func TestStore_GetAll(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Save(context.Background(), branchmigrate.BranchMigrationStatus{BranchID: "branch-b", State: branchmigrate.StateFailed}))
	require.NoError(t, s.Save(context.Background(), branchmigrate.BranchMigrationStatus{BranchID: "branch-a", State: branchmigrate.StateCompleted}))
	require.NoError(t, s.Save(context.Background(), branchmigrate.BranchMigrationStatus{BranchID: "branch-c", State: branchmigrate.StatePending}))

	statuses, err := s.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "branch-a", statuses[0].BranchID)
	assert.Equal(t, "branch-b", statuses[1].BranchID)
	assert.Equal(t, "branch-c", statuses[2].BranchID)
}

// The ledger is the resume point after a crash: a second store over the same
// database must see exactly what the first one persisted.
func TestStore_ResumeAcrossInstances(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	first := New(db)
	require.NoError(t, first.Init(context.Background()))
	require.NoError(t, first.Save(context.Background(), branchmigrate.BranchMigrationStatus{
		BranchID:    "branch-1",
		Applied:     []int64{1, 2},
		LastApplied: 2,
		State:       branchmigrate.StateInProgress,
	}))

	second := New(db)
	require.NoError(t, second.Init(context.Background()))

	got, err := second.Get(context.Background(), "branch-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.Applied)
	assert.Equal(t, branchmigrate.StateInProgress, got.State)
}
