package memory

import (
	"context"
	"testing"

	"github.com/fleetdb/branchmigrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteDescriptor(database string) branchmigrate.ConnectionDescriptor {
	return branchmigrate.ConnectionDescriptor{
		Engine:   branchmigrate.EngineSQLite,
		Database: database,
	}
}

func TestRegistry_AddBranch(t *testing.T) {
	r := New()
	branch := r.AddBranch("alpha", sqliteDescriptor("alpha"))

	assert.NotEmpty(t, branch.ID)
	assert.True(t, branch.Active)
	assert.False(t, branch.CreatedAt.IsZero())

	got, err := r.GetBranch(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.Equal(t, branch, got)
}

func TestRegistry_Put(t *testing.T) {
	t.Run("keeps a provided id", func(t *testing.T) {
		r := New()
		branch := r.Put(branchmigrate.Branch{
			ID:         "branch-fixed",
			Name:       "alpha",
			Descriptor: sqliteDescriptor("alpha"),
			Active:     true,
		})
		assert.Equal(t, "branch-fixed", branch.ID)

		got, err := r.GetBranch(context.Background(), "branch-fixed")
		require.NoError(t, err)
		assert.Equal(t, "alpha", got.Name)
	})

	t.Run("mints an id when absent", func(t *testing.T) {
		r := New()
		branch := r.Put(branchmigrate.Branch{Name: "beta", Descriptor: sqliteDescriptor("beta"), Active: true})
		assert.NotEmpty(t, branch.ID)
		assert.False(t, branch.UpdatedAt.IsZero())
	})
}

func TestRegistry_GetBranch(t *testing.T) {
	r := New()
	_, err := r.GetBranch(context.Background(), "missing")
	assert.ErrorIs(t, err, branchmigrate.ErrBranchNotFound)
}

func TestRegistry_ListActiveBranches(t *testing.T) {
	r := New()
	beta := r.AddBranch("beta", sqliteDescriptor("beta"))
	r.AddBranch("alpha", sqliteDescriptor("alpha"))
	require.NoError(t, r.Deactivate(beta.ID))

	branches, err := r.ListActiveBranches(context.Background())
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "alpha", branches[0].Name)
}

func TestRegistry_Deactivate(t *testing.T) {
	r := New()
	branch := r.AddBranch("alpha", sqliteDescriptor("alpha"))

	require.NoError(t, r.Deactivate(branch.ID))

	// Soft-deactivated branches remain addressable by id.
	got, err := r.GetBranch(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, r.Deactivate("missing"), branchmigrate.ErrBranchNotFound)
}

func TestRegistry_UpdateDescriptor(t *testing.T) {
	t.Run("replaces the descriptor and notifies subscribers", func(t *testing.T) {
		r := New()
		branch := r.AddBranch("alpha", sqliteDescriptor("alpha"))

		var notified []string
		r.OnDescriptorChange(func(branchID string) {
			notified = append(notified, branchID)
		})

		moved := sqliteDescriptor("alpha_moved")
		require.NoError(t, r.UpdateDescriptor(branch.ID, moved))

		got, err := r.GetBranch(context.Background(), branch.ID)
		require.NoError(t, err)
		assert.True(t, got.Descriptor.Equal(moved))
		assert.Equal(t, []string{branch.ID}, notified)
	})

	t.Run("unknown branch", func(t *testing.T) {
		r := New()
		err := r.UpdateDescriptor("missing", sqliteDescriptor("x"))
		assert.ErrorIs(t, err, branchmigrate.ErrBranchNotFound)
	})
}
