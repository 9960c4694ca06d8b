package engine

import (
	"context"
	"time"

	"github.com/fleetdb/branchmigrate"
	"github.com/pkg/errors"
)

// RollbackLast rolls back the most recently applied migration unit of one
// branch. On success the unit is removed from the applied list and the status
// recomputed. On failure the branch's schema state is ambiguous: it is marked
// requires_manual_intervention and excluded from automatic retries.
func (e *Engine) RollbackLast(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
	branch, err := e.registry.GetBranch(ctx, branchID)
	if err != nil {
		return branchmigrate.BranchMigrationStatus{}, err
	}

	if !e.locks.TryLock(branchID) {
		return branchmigrate.BranchMigrationStatus{}, branchmigrate.ErrOperationInProgress
	}
	defer e.locks.Unlock(branchID)

	return e.rollbackLocked(ctx, branch)
}

func (e *Engine) rollbackLocked(ctx context.Context, branch branchmigrate.Branch) (branchmigrate.BranchMigrationStatus, error) {
	logger := e.logger.WithField("branch", branch.ID)

	status, err := e.store.Get(ctx, branch.ID)
	if err != nil {
		return branchmigrate.BranchMigrationStatus{}, err
	}
	if status.State == branchmigrate.StateRequiresManualIntervention {
		return status, branchmigrate.ErrManualInterventionRequired
	}
	if len(status.Applied) == 0 {
		return status, branchmigrate.ErrNothingToRollback
	}

	lastID := status.Applied[len(status.Applied)-1]
	unit, ok := e.catalog.Unit(lastID)
	if !ok {
		// The catalog is append-only, so a recorded id without a catalog
		// entry means the ledger and catalog have diverged.
		return status, &branchmigrate.ConfigurationError{
			Reason: errors.Errorf("applied migration %d is not in the catalog", lastID).Error(),
		}
	}

	status.State = branchmigrate.StateInProgress
	status.LastAttemptAt = time.Now().UTC()
	if err := e.saveStatus(ctx, status); err != nil {
		return status, errors.Wrap(err, "failed to persist in-progress status")
	}

	db, err := e.router.Resolve(ctx, branch)
	if err != nil {
		status = e.recordFailure(ctx, status, err, logger)
		e.countBranchRun("rollback", false)
		return status, err
	}

	if err := e.runner.Rollback(context.WithoutCancel(ctx), db, unit); err != nil {
		scriptErr := &branchmigrate.RollbackScriptError{UnitID: unit.ID, UnitName: unit.Name, Err: err}
		status.State = branchmigrate.StateRequiresManualIntervention
		status.LastError = scriptErr.Error()
		status.LastAttemptAt = time.Now().UTC()
		if saveErr := e.saveStatus(ctx, status); saveErr != nil {
			logger.WithError(saveErr).Error("Failed to persist manual-intervention status")
		}
		if e.collector != nil {
			e.collector.IncRollbackFailure(branch.Descriptor.Engine)
			e.collector.IncManualIntervention(branch.Descriptor.Engine)
		}
		e.countBranchRun("rollback", false)
		logger.WithError(err).WithField("unit", unit.ID).Error("Rollback script failed, branch requires manual intervention")
		return status, scriptErr
	}

	status.Applied = status.Applied[:len(status.Applied)-1]
	if len(status.Applied) > 0 {
		status.LastApplied = status.Applied[len(status.Applied)-1]
	} else {
		status.LastApplied = 0
	}
	status.LastAttemptAt = time.Now().UTC()
	status.LastError = ""
	if len(e.catalog.Pending(status.Applied)) == 0 {
		status.State = branchmigrate.StateCompleted
	} else {
		status.State = branchmigrate.StatePending
	}
	if err := e.saveStatus(ctx, status); err != nil {
		return status, errors.Wrapf(err, "migration %d rolled back but status persistence failed", unit.ID)
	}

	if e.collector != nil {
		e.collector.IncUnitRolledBack(branch.Descriptor.Engine)
	}
	e.countBranchRun("rollback", true)
	logger.WithField("unit", unit.ID).Info("Rolled back migration unit")
	return status, nil
}

// RollbackAllBranches fans RollbackLast out across every active branch with
// the same per-branch isolation guarantee as ApplyAllBranches. Branches with
// nothing applied are reported as successes.
func (e *Engine) RollbackAllBranches(ctx context.Context) ([]branchmigrate.BranchResult, error) {
	return e.fanOut(ctx, "rollback", func(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
		status, err := e.RollbackLast(ctx, branchID)
		if errors.Is(err, branchmigrate.ErrNothingToRollback) {
			return status, nil
		}
		return status, err
	})
}
