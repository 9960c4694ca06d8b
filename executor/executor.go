// Package executor runs migration scripts inside per-unit transactions.
package executor

import (
	"context"
	"database/sql"
	"strings"

	"github.com/fleetdb/branchmigrate"
	"github.com/pkg/errors"
)

// Executor is the SQL implementation of Runner. Each script runs inside its
// own transaction so a failed unit leaves no partial changes behind on
// engines with transactional DDL.
type Executor struct{}

// Compile-time check that Executor implements Runner.
var _ Runner = (*Executor)(nil)

// New creates a new Executor.
func New() *Executor {
	return &Executor{}
}

// Apply executes the unit's forward script.
func (e *Executor) Apply(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error {
	if err := execScript(ctx, db, unit.UpScript); err != nil {
		return errors.Wrapf(err, "forward script of migration %d (%s)", unit.ID, unit.Name)
	}
	return nil
}

// Rollback executes the unit's backward script.
func (e *Executor) Rollback(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error {
	if err := execScript(ctx, db, unit.DownScript); err != nil {
		return errors.Wrapf(err, "backward script of migration %d (%s)", unit.ID, unit.Name)
	}
	return nil
}

func execScript(ctx context.Context, db *sql.DB, script string) error {
	if strings.TrimSpace(script) == "" {
		return errors.New("empty migration script")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if _, err := tx.ExecContext(ctx, script); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "script failed and transaction rollback also failed: %v", rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}
