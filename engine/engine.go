// Package engine coordinates migration applies and rollbacks across the
// branch fleet. It routes handles through the connection router, computes
// pending work against the catalog, and records every outcome in the status
// store.
package engine

import (
	"context"
	"database/sql"

	"github.com/fleetdb/branchmigrate"
	"github.com/fleetdb/branchmigrate/executor"
	"github.com/fleetdb/branchmigrate/metrics"
	"github.com/fleetdb/branchmigrate/store"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxConcurrency bounds bulk fan-out. Size it below the downstream
// connection-pool limits of the target engines.
const DefaultMaxConcurrency = 4

// HandleResolver resolves a branch to a database handle. The connection
// router satisfies this; tests substitute doubles.
type HandleResolver interface {
	Resolve(ctx context.Context, branch branchmigrate.Branch) (*sql.DB, error)
}

// Config configures an Engine.
type Config struct {
	// Registry is the tenant registry (required).
	Registry branchmigrate.BranchRegistry

	// Catalog is the ordered set of published migration units (required).
	Catalog *branchmigrate.Catalog

	// Router resolves branches to database handles (required).
	Router HandleResolver

	// Store persists per-branch migration status (required).
	Store store.StatusStore

	// Runner executes migration scripts (required).
	Runner executor.Runner

	// MaxConcurrency bounds concurrent branch operations during bulk calls
	// (default: DefaultMaxConcurrency).
	MaxConcurrency int

	// Logger is for observability (optional).
	Logger log.FieldLogger

	// Collector records prometheus metrics (optional).
	Collector *metrics.Collector
}

// Engine is the migration orchestrator.
type Engine struct {
	registry  branchmigrate.BranchRegistry
	catalog   *branchmigrate.Catalog
	router    HandleResolver
	store     store.StatusStore
	runner    executor.Runner
	logger    log.FieldLogger
	collector *metrics.Collector

	locks *branchLocks
	sem   chan struct{}
}

// New creates an Engine, validating required configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("status store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("script runner is required")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	return &Engine{
		registry:  cfg.Registry,
		catalog:   cfg.Catalog,
		router:    cfg.Router,
		store:     cfg.Store,
		runner:    cfg.Runner,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		locks:     newBranchLocks(),
		sem:       make(chan struct{}, cfg.MaxConcurrency),
	}, nil
}

// GetMigrationStatus returns the status record for a branch. The record is
// created lazily; querying a branch that never ran reports pending.
func (e *Engine) GetMigrationStatus(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
	if _, err := e.registry.GetBranch(ctx, branchID); err != nil {
		return branchmigrate.BranchMigrationStatus{}, err
	}
	return e.store.Get(ctx, branchID)
}

// GetAllMigrationStatus returns every persisted status record.
func (e *Engine) GetAllMigrationStatus(ctx context.Context) ([]branchmigrate.BranchMigrationStatus, error) {
	return e.store.GetAll(ctx)
}

// GetPendingMigrations returns the units the branch has not applied yet, in
// catalog order, along with their count.
func (e *Engine) GetPendingMigrations(ctx context.Context, branchID string) ([]branchmigrate.MigrationUnit, int, error) {
	if _, err := e.registry.GetBranch(ctx, branchID); err != nil {
		return nil, 0, err
	}
	status, err := e.store.Get(ctx, branchID)
	if err != nil {
		return nil, 0, err
	}
	pending := e.catalog.Pending(status.Applied)
	return pending, len(pending), nil
}

// MarkResolved clears the requires_manual_intervention state after an
// operator has reconciled the branch by hand. The status is recomputed from
// the applied list; there is no automatic exit from manual intervention.
func (e *Engine) MarkResolved(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
	if _, err := e.registry.GetBranch(ctx, branchID); err != nil {
		return branchmigrate.BranchMigrationStatus{}, err
	}
	if !e.locks.TryLock(branchID) {
		return branchmigrate.BranchMigrationStatus{}, branchmigrate.ErrOperationInProgress
	}
	defer e.locks.Unlock(branchID)

	status, err := e.store.Get(ctx, branchID)
	if err != nil {
		return branchmigrate.BranchMigrationStatus{}, err
	}
	if status.State != branchmigrate.StateRequiresManualIntervention {
		return status, errors.Errorf("branch %s is in state %s, not %s",
			branchID, status.State, branchmigrate.StateRequiresManualIntervention)
	}

	if len(e.catalog.Pending(status.Applied)) == 0 {
		status.State = branchmigrate.StateCompleted
	} else {
		status.State = branchmigrate.StatePending
	}
	status.LastError = ""
	if err := e.store.Save(ctx, status); err != nil {
		return status, errors.Wrap(err, "failed to persist resolved status")
	}

	e.logger.WithField("branch", branchID).Info("Manual intervention cleared by operator")
	return status, nil
}

// saveStatus persists a status record on a context that survives caller
// cancellation. Bookkeeping must never be lost to a cancelled bulk call.
func (e *Engine) saveStatus(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
	return e.store.Save(context.WithoutCancel(ctx), status)
}
