package engine

import (
	"context"
	"testing"

	"github.com/fleetdb/branchmigrate"
	"github.com/fleetdb/branchmigrate/executor"
	registrymemory "github.com/fleetdb/branchmigrate/registry/memory"
	"github.com/fleetdb/branchmigrate/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockStoreEnv builds an engine over a MockStatusStore so store failures
// can be injected per call.
func newMockStoreEnv(t *testing.T, mock *store.MockStatusStore) (*Engine, *registrymemory.Registry, *executor.MockRunner) {
	t.Helper()

	registry := registrymemory.New()
	runner := executor.NewMockRunner()

	engine, err := New(Config{
		Registry: registry,
		Catalog:  newTestCatalog(t),
		Router:   nilResolver,
		Store:    mock,
		Runner:   runner,
	})
	require.NoError(t, err)
	return engine, registry, runner
}

func TestEngine_StatusPersistenceFailures(t *testing.T) {
	addBranch := func(r *registrymemory.Registry) branchmigrate.Branch {
		return r.AddBranch("alpha", branchmigrate.ConnectionDescriptor{
			Engine:   branchmigrate.EngineSQLite,
			Database: "alpha",
		})
	}

	t.Run("in-progress persist failure aborts before any script", func(t *testing.T) {
		mock := store.NewMockStatusStore()
		mock.SaveFunc = func(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
			return errors.New("disk full")
		}
		engine, registry, runner := newMockStoreEnv(t, mock)
		branch := addBranch(registry)

		_, err := engine.ApplyAll(context.Background(), branch.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist in-progress status")
		assert.Empty(t, runner.AppliedUnits(), "no script may run without a durable in-progress record")
	})

	t.Run("persist failure after an applied unit stops the run", func(t *testing.T) {
		mock := store.NewMockStatusStore()
		mock.SaveFunc = func(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
			// The in-progress save has nothing applied; fail the per-unit one.
			if len(status.Applied) > 0 {
				return errors.New("disk full")
			}
			return nil
		}
		engine, registry, runner := newMockStoreEnv(t, mock)
		branch := addBranch(registry)

		status, err := engine.ApplyAll(context.Background(), branch.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration 1 applied but status persistence failed")
		assert.Equal(t, []int64{1}, status.Applied)
		assert.Equal(t, []int64{1}, appliedIDs(runner.AppliedUnits()),
			"the run stops at the first unpersisted unit")
	})

	t.Run("completed no-op persist failure is surfaced", func(t *testing.T) {
		mock := store.NewMockStatusStore()
		mock.GetFunc = func(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
			return branchmigrate.BranchMigrationStatus{
				BranchID:    branchID,
				Applied:     []int64{1, 2, 3},
				LastApplied: 3,
				State:       branchmigrate.StateFailed,
			}, nil
		}
		mock.SaveFunc = func(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
			return errors.New("disk full")
		}
		engine, registry, runner := newMockStoreEnv(t, mock)
		branch := addBranch(registry)

		_, err := engine.ApplyAll(context.Background(), branch.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist completed status")
		assert.Empty(t, runner.AppliedUnits())
	})

	t.Run("rollback in-progress persist failure runs no script", func(t *testing.T) {
		mock := store.NewMockStatusStore()
		mock.GetFunc = func(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
			return branchmigrate.BranchMigrationStatus{
				BranchID:    branchID,
				Applied:     []int64{1},
				LastApplied: 1,
				State:       branchmigrate.StatePending,
			}, nil
		}
		mock.SaveFunc = func(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
			return errors.New("disk full")
		}
		engine, registry, runner := newMockStoreEnv(t, mock)
		branch := addBranch(registry)

		_, err := engine.RollbackLast(context.Background(), branch.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist in-progress status")
		assert.Empty(t, runner.RollbackCalls)
	})

	t.Run("persist failure after a rollback is surfaced", func(t *testing.T) {
		mock := store.NewMockStatusStore()
		mock.GetFunc = func(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
			return branchmigrate.BranchMigrationStatus{
				BranchID:    branchID,
				Applied:     []int64{1},
				LastApplied: 1,
				State:       branchmigrate.StatePending,
			}, nil
		}
		mock.SaveFunc = func(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
			// Let the in-progress save through; fail the final one.
			if status.State != branchmigrate.StateInProgress {
				return errors.New("disk full")
			}
			return nil
		}
		engine, registry, runner := newMockStoreEnv(t, mock)
		branch := addBranch(registry)

		_, err := engine.RollbackLast(context.Background(), branch.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration 1 rolled back but status persistence failed")
		require.Len(t, runner.RollbackCalls, 1)
		assert.Equal(t, int64(1), runner.RollbackCalls[0].ID)
	})
}
