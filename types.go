package branchmigrate

import (
	"context"
	"time"
)

// EngineKind identifies the relational engine a branch database runs on.
type EngineKind string

const (
	// EngineSQLite is the embedded file-based engine. The database lives in a
	// file under the router's data root; credentials are ignored.
	EngineSQLite EngineKind = "sqlite"

	// EnginePostgres is a client-server PostgreSQL engine.
	EnginePostgres EngineKind = "postgres"

	// EngineMySQL is a client-server MySQL engine.
	EngineMySQL EngineKind = "mysql"

	// EngineSQLServer is a client-server Microsoft SQL Server engine.
	EngineSQLServer EngineKind = "sqlserver"
)

// Known reports whether k is one of the supported engine kinds.
func (k EngineKind) Known() bool {
	switch k {
	case EngineSQLite, EnginePostgres, EngineMySQL, EngineSQLServer:
		return true
	}
	return false
}

// ConnectionDescriptor describes how to reach a branch database.
type ConnectionDescriptor struct {
	// Engine selects the engine-specific connection builder.
	Engine EngineKind

	// Host is the server address. Unused for the embedded engine.
	Host string

	// Port is the server port. Zero means the engine's default port.
	Port int

	// Database is the database name. For the embedded engine it names the
	// database file (without extension) under the router's data root.
	Database string

	// Username and Password are optional credentials. When both are empty the
	// server builders fall back to trusted/integrated authentication.
	Username string
	Password string

	// SSLMode controls transport security for server engines
	// ("disable", "require", ...). Interpreted per engine.
	SSLMode string

	// Params are free-form engine-specific connection parameters.
	Params map[string]string
}

// Equal reports whether two descriptors would produce the same connection.
// The router uses this to detect descriptor changes and drop stale handles.
func (d ConnectionDescriptor) Equal(other ConnectionDescriptor) bool {
	if d.Engine != other.Engine ||
		d.Host != other.Host ||
		d.Port != other.Port ||
		d.Database != other.Database ||
		d.Username != other.Username ||
		d.Password != other.Password ||
		d.SSLMode != other.SSLMode {
		return false
	}
	if len(d.Params) != len(other.Params) {
		return false
	}
	for k, v := range d.Params {
		if other.Params[k] != v {
			return false
		}
	}
	return true
}

// Validate checks the descriptor for configuration mistakes that no retry can
// fix. It returns a *ConfigurationError on failure.
func (d ConnectionDescriptor) Validate() error {
	if !d.Engine.Known() {
		return &ConfigurationError{Reason: "unsupported engine kind " + string(d.Engine)}
	}
	if d.Database == "" {
		return &ConfigurationError{Reason: "database name is required"}
	}
	if d.Engine != EngineSQLite && d.Host == "" {
		return &ConfigurationError{Reason: "host is required for engine " + string(d.Engine)}
	}
	return nil
}

// Branch is one independently provisioned tenant database. Branches are owned
// by the tenant registry; they are soft-deactivated, never hard-deleted.
type Branch struct {
	// ID is the stable unique identifier of the branch.
	ID string

	// Name is the human-readable branch name.
	Name string

	// Descriptor describes how to connect to the branch's database.
	Descriptor ConnectionDescriptor

	// Active indicates the branch participates in fleet-wide operations.
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MigrationState is the lifecycle state of a branch's migration record.
type MigrationState string

const (
	// StatePending indicates migration units are outstanding.
	StatePending MigrationState = "pending"

	// StateInProgress indicates an apply or rollback is currently running.
	StateInProgress MigrationState = "in_progress"

	// StateCompleted indicates nothing is outstanding and the last attempt
	// succeeded.
	StateCompleted MigrationState = "completed"

	// StateFailed indicates a forward script failed. The branch is eligible
	// for retry once the cause is addressed.
	StateFailed MigrationState = "failed"

	// StateRequiresManualIntervention indicates a rollback script failed and
	// the branch's schema state is ambiguous. Automated operations refuse the
	// branch until an operator marks it resolved.
	StateRequiresManualIntervention MigrationState = "requires_manual_intervention"
)

// BranchMigrationStatus is the durable per-branch record of applied
// migrations and the outcome of the last attempt.
type BranchMigrationStatus struct {
	// BranchID identifies the branch this record belongs to.
	BranchID string

	// Applied is the ordered list of migration unit ids the branch has
	// successfully executed.
	Applied []int64

	// LastApplied is the id of the most recently applied unit, zero if none.
	LastApplied int64

	// LastAttemptAt is when an apply or rollback last touched this branch.
	LastAttemptAt time.Time

	// LastError describes the most recent failure, empty on success.
	LastError string

	// State is the current lifecycle state.
	State MigrationState
}

// NewBranchMigrationStatus returns a fresh pending record for a branch.
// Status records are created lazily on first query.
func NewBranchMigrationStatus(branchID string) BranchMigrationStatus {
	return BranchMigrationStatus{
		BranchID: branchID,
		State:    StatePending,
	}
}

// HasApplied reports whether the given unit id is in the applied list.
func (s BranchMigrationStatus) HasApplied(id int64) bool {
	for _, applied := range s.Applied {
		if applied == id {
			return true
		}
	}
	return false
}

// DiscrepancyKind classifies a difference between the expected and the live
// schema of a branch.
type DiscrepancyKind string

const (
	// DiscrepancyMissingObject indicates an expected object is absent.
	DiscrepancyMissingObject DiscrepancyKind = "missing_object"

	// DiscrepancyUnexpectedObject indicates a live object the catalog never
	// declared.
	DiscrepancyUnexpectedObject DiscrepancyKind = "unexpected_object"

	// DiscrepancyTypeMismatch indicates an object exists with a different
	// shape than declared.
	DiscrepancyTypeMismatch DiscrepancyKind = "type_mismatch"
)

// Discrepancy is a single difference found by the schema validator.
type Discrepancy struct {
	// Kind classifies the difference.
	Kind DiscrepancyKind

	// Object names the affected object ("table users", "column users.email").
	Object string

	// Detail is a human-readable description of the difference.
	Detail string
}

// ValidationResult is the outcome of validating one branch's live schema
// against the catalog's expected shape.
type ValidationResult struct {
	BranchID      string
	Valid         bool
	Discrepancies []Discrepancy
}

// BranchResult is the itemized per-branch outcome of a bulk apply or rollback
// call. Bulk calls always return one entry per active branch, successes and
// failures alike.
type BranchResult struct {
	// BranchID identifies the branch.
	BranchID string

	// Name is the branch name, carried for readable operator output.
	Name string

	// State is the branch's migration state after the operation.
	State MigrationState

	// Err is nil when the branch operation succeeded.
	Err error
}

// BranchRegistry is the external tenant registry the orchestration layer
// consumes. Implementations must be safe for concurrent use.
type BranchRegistry interface {
	// GetBranch returns the branch with the given id.
	// Returns ErrBranchNotFound if no such branch exists.
	GetBranch(ctx context.Context, id string) (Branch, error)

	// ListActiveBranches returns all active branches, sorted by name.
	ListActiveBranches(ctx context.Context) ([]Branch, error)
}
