// Package sqlite persists branch migration status in a SQLite ledger so an
// interrupted run can resume across process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fleetdb/branchmigrate"
	"github.com/fleetdb/branchmigrate/store"
	"github.com/pkg/errors"
)

// Store is a SQLite implementation of store.StatusStore.
type Store struct {
	db          *sql.DB
	statusTable string
}

// New creates a ledger store with the default table name.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a ledger store with a custom table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{
		db:          db,
		statusTable: config.StatusTable,
	}
}

// Init creates the ledger table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, MigrationUp(TableConfig{StatusTable: s.statusTable})); err != nil {
		return errors.Wrap(err, "failed to initialize status ledger")
	}
	return nil
}

// rawStatus carries the database row before the JSON applied list is decoded.
type rawStatus struct {
	BranchID      string
	AppliedRaw    []byte
	LastApplied   int64
	LastAttemptAt int64
	LastError     string
	State         string
}

func (r *rawStatus) toStatus() (branchmigrate.BranchMigrationStatus, error) {
	status := branchmigrate.BranchMigrationStatus{
		BranchID:    r.BranchID,
		LastApplied: r.LastApplied,
		LastError:   r.LastError,
		State:       branchmigrate.MigrationState(r.State),
	}
	if r.LastAttemptAt > 0 {
		status.LastAttemptAt = time.UnixMilli(r.LastAttemptAt).UTC()
	}
	if len(r.AppliedRaw) > 0 {
		if err := json.Unmarshal(r.AppliedRaw, &status.Applied); err != nil {
			return branchmigrate.BranchMigrationStatus{}, errors.Wrapf(store.ErrCorruptRecord, "branch %s: %v", r.BranchID, err)
		}
	}
	return status, nil
}

func (s *Store) selectBuilder() sq.SelectBuilder {
	return sq.
		Select("branch_id", "applied_raw", "last_applied", "last_attempt_at", "last_error", "state").
		From(s.statusTable)
}

// Get returns the status record for a branch, or a fresh pending record when
// the ledger has no row for it yet.
func (s *Store) Get(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
	query, args, err := s.selectBuilder().Where(sq.Eq{"branch_id": branchID}).ToSql()
	if err != nil {
		return branchmigrate.BranchMigrationStatus{}, errors.Wrap(err, "failed to build status query")
	}

	var raw rawStatus
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&raw.BranchID,
		&raw.AppliedRaw,
		&raw.LastApplied,
		&raw.LastAttemptAt,
		&raw.LastError,
		&raw.State,
	)
	if err == sql.ErrNoRows {
		return branchmigrate.NewBranchMigrationStatus(branchID), nil
	}
	if err != nil {
		return branchmigrate.BranchMigrationStatus{}, errors.Wrap(err, "failed to query status record")
	}

	return raw.toStatus()
}

// GetAll returns every persisted status record, ordered by branch id.
func (s *Store) GetAll(ctx context.Context) ([]branchmigrate.BranchMigrationStatus, error) {
	query, args, err := s.selectBuilder().OrderBy("branch_id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build status query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query status records")
	}
	defer rows.Close()

	var statuses []branchmigrate.BranchMigrationStatus
	for rows.Next() {
		var raw rawStatus
		if err := rows.Scan(
			&raw.BranchID,
			&raw.AppliedRaw,
			&raw.LastApplied,
			&raw.LastAttemptAt,
			&raw.LastError,
			&raw.State,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan status record")
		}
		status, err := raw.toStatus()
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// Save persists the status record, creating or replacing the ledger row.
func (s *Store) Save(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
	applied := status.Applied
	if applied == nil {
		applied = []int64{}
	}
	appliedRaw, err := json.Marshal(applied)
	if err != nil {
		return errors.Wrap(err, "failed to marshal applied list")
	}

	var lastAttempt int64
	if !status.LastAttemptAt.IsZero() {
		lastAttempt = status.LastAttemptAt.UnixMilli()
	}

	query, args, err := sq.
		Insert(s.statusTable).
		Options("OR REPLACE").
		SetMap(map[string]interface{}{
			"branch_id":       status.BranchID,
			"applied_raw":     appliedRaw,
			"last_applied":    status.LastApplied,
			"last_attempt_at": lastAttempt,
			"last_error":      status.LastError,
			"state":           string(status.State),
		}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build status upsert")
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to save status record")
	}
	return nil
}
