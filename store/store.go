// Package store defines the durable persistence contract for per-branch
// migration status records.
package store

import (
	"context"

	"github.com/fleetdb/branchmigrate"
)

// StatusStore provides persistence for branch migration status records.
// Implementations must be safe for concurrent access and must persist
// eagerly: the orchestrator saves after every applied unit so an interrupted
// run can resume without re-applying committed units.
type StatusStore interface {
	// Get returns the status record for a branch. When no record exists yet
	// a fresh pending record is returned; records are created lazily and
	// only persisted by Save.
	Get(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error)

	// GetAll returns every persisted status record, ordered by branch id.
	GetAll(ctx context.Context) ([]branchmigrate.BranchMigrationStatus, error)

	// Save persists the status record, creating or replacing it.
	Save(ctx context.Context, status branchmigrate.BranchMigrationStatus) error
}
