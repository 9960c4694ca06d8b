package executor

import (
	"context"
	"database/sql"

	"github.com/fleetdb/branchmigrate"
)

// Runner executes migration scripts against a branch's database handle.
// This interface allows for mock implementations in tests.
type Runner interface {
	// Apply executes the unit's forward script.
	Apply(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error

	// Rollback executes the unit's backward script.
	Rollback(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error
}
