package branchmigrate

import (
	"errors"
	"fmt"
)

var (
	// ErrBranchNotFound indicates the registry has no branch with the given id.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrOperationInProgress indicates another apply or rollback already holds
	// the branch's operation lock. At most one operation runs per branch.
	ErrOperationInProgress = errors.New("a migration operation is already in progress for this branch")

	// ErrManualInterventionRequired indicates the branch is in the
	// requires_manual_intervention state and automated operations refuse it
	// until an operator marks it resolved.
	ErrManualInterventionRequired = errors.New("branch requires manual intervention")

	// ErrNothingToRollback indicates the branch has no applied migrations.
	ErrNothingToRollback = errors.New("no applied migrations to roll back")
)

// ConfigurationError indicates a misconfigured branch (unsupported engine
// kind, malformed descriptor). It is fatal: never retried and never cached.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ConnectivityError indicates the branch's database could not be reached.
// It is recoverable; the branch is marked failed and may be retried.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// MigrationScriptError indicates a forward migration script failed. The
// branch is marked failed; remaining pending units are skipped until an
// operator retries.
type MigrationScriptError struct {
	UnitID   int64
	UnitName string
	Err      error
}

func (e *MigrationScriptError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.UnitID, e.UnitName, e.Err)
}

func (e *MigrationScriptError) Unwrap() error {
	return e.Err
}

// RollbackScriptError indicates a backward migration script failed. The
// branch's schema state is ambiguous; it is marked
// requires_manual_intervention and excluded from automatic retries.
type RollbackScriptError struct {
	UnitID   int64
	UnitName string
	Err      error
}

func (e *RollbackScriptError) Error() string {
	return fmt.Sprintf("rollback of migration %d (%s) failed: %v", e.UnitID, e.UnitName, e.Err)
}

func (e *RollbackScriptError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsConnectivityError reports whether err is or wraps a *ConnectivityError.
func IsConnectivityError(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

// IsMigrationScriptError reports whether err is or wraps a
// *MigrationScriptError.
func IsMigrationScriptError(err error) bool {
	var target *MigrationScriptError
	return errors.As(err, &target)
}

// IsRollbackScriptError reports whether err is or wraps a
// *RollbackScriptError.
func IsRollbackScriptError(err error) bool {
	var target *RollbackScriptError
	return errors.As(err, &target)
}
