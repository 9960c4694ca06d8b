package engine

import (
	"context"
	"time"

	"github.com/fleetdb/branchmigrate"
	"github.com/pkg/errors"
)

// ApplyAll applies every pending migration unit to one branch, strictly in
// catalog order. The status record is persisted after each unit so an
// interrupted run resumes without re-applying committed units. The first
// failing unit stops the run and marks the branch failed. Calling with
// nothing pending is a no-op reporting completed.
func (e *Engine) ApplyAll(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
	branch, err := e.registry.GetBranch(ctx, branchID)
	if err != nil {
		return branchmigrate.BranchMigrationStatus{}, err
	}

	if !e.locks.TryLock(branchID) {
		return branchmigrate.BranchMigrationStatus{}, branchmigrate.ErrOperationInProgress
	}
	defer e.locks.Unlock(branchID)

	return e.applyLocked(ctx, branch)
}

func (e *Engine) applyLocked(ctx context.Context, branch branchmigrate.Branch) (branchmigrate.BranchMigrationStatus, error) {
	logger := e.logger.WithField("branch", branch.ID)

	status, err := e.store.Get(ctx, branch.ID)
	if err != nil {
		return branchmigrate.BranchMigrationStatus{}, err
	}
	if status.State == branchmigrate.StateRequiresManualIntervention {
		return status, branchmigrate.ErrManualInterventionRequired
	}

	pending := e.catalog.Pending(status.Applied)
	if len(pending) == 0 {
		if status.State != branchmigrate.StateCompleted {
			status.State = branchmigrate.StateCompleted
			status.LastError = ""
			if err := e.saveStatus(ctx, status); err != nil {
				return status, errors.Wrap(err, "failed to persist completed status")
			}
		}
		return status, nil
	}

	status.State = branchmigrate.StateInProgress
	status.LastAttemptAt = time.Now().UTC()
	if err := e.saveStatus(ctx, status); err != nil {
		return status, errors.Wrap(err, "failed to persist in-progress status")
	}

	db, err := e.router.Resolve(ctx, branch)
	if err != nil {
		status = e.recordFailure(ctx, status, err, logger)
		e.countBranchRun("apply", false)
		return status, err
	}

	for _, unit := range pending {
		// A cancelled bulk call stops between units; the current unit is
		// never interrupted mid-execution. A failure message recorded by an
		// earlier attempt stays in place.
		if ctxErr := ctx.Err(); ctxErr != nil {
			status.State = branchmigrate.StatePending
			if err := e.saveStatus(ctx, status); err != nil {
				logger.WithError(err).Error("Failed to persist status after cancellation")
			}
			logger.WithField("remaining", len(e.catalog.Pending(status.Applied))).Info("Apply cancelled between units")
			e.countBranchRun("apply", false)
			return status, ctxErr
		}

		if err := e.runner.Apply(context.WithoutCancel(ctx), db, unit); err != nil {
			scriptErr := &branchmigrate.MigrationScriptError{UnitID: unit.ID, UnitName: unit.Name, Err: err}
			status = e.recordFailure(ctx, status, scriptErr, logger)
			if e.collector != nil {
				e.collector.IncApplyFailure(branch.Descriptor.Engine)
			}
			e.countBranchRun("apply", false)
			return status, scriptErr
		}

		status.Applied = append(status.Applied, unit.ID)
		status.LastApplied = unit.ID
		status.LastAttemptAt = time.Now().UTC()
		status.LastError = ""
		if err := e.saveStatus(ctx, status); err != nil {
			e.countBranchRun("apply", false)
			return status, errors.Wrapf(err, "migration %d applied but status persistence failed", unit.ID)
		}

		if e.collector != nil {
			e.collector.IncUnitApplied(branch.Descriptor.Engine)
		}
		logger.WithField("unit", unit.ID).Info("Applied migration unit")
	}

	status.State = branchmigrate.StateCompleted
	if err := e.saveStatus(ctx, status); err != nil {
		return status, errors.Wrap(err, "failed to persist completed status")
	}

	e.countBranchRun("apply", true)
	logger.WithField("applied", len(pending)).Info("Branch migration completed")
	return status, nil
}

// ApplyAllBranches fans ApplyAll out across every active branch with bounded
// concurrency. Branches are fully isolated: one branch's failure never
// aborts or skips another. The itemized per-branch result list is always
// returned; the error is non-nil when any branch failed.
func (e *Engine) ApplyAllBranches(ctx context.Context) ([]branchmigrate.BranchResult, error) {
	return e.fanOut(ctx, "apply", e.ApplyAll)
}
