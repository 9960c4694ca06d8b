package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fleetdb/branchmigrate"
	"github.com/fleetdb/branchmigrate/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// fanOut runs op concurrently across every active branch, gated by the
// engine's semaphore. Per-branch errors are captured into that branch's
// result entry and never abort sibling branches.
func (e *Engine) fanOut(
	ctx context.Context,
	operation string,
	op func(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error),
) ([]branchmigrate.BranchResult, error) {
	branches, err := e.registry.ListActiveBranches(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active branches")
	}

	results := make([]branchmigrate.BranchResult, len(branches))
	var wg sync.WaitGroup
	for i, branch := range branches {
		wg.Add(1)
		go func(i int, branch branchmigrate.Branch) {
			defer wg.Done()

			select {
			case e.sem <- struct{}{}:
			case <-ctx.Done():
				// The branch never started; report its last persisted state.
				status, getErr := e.store.Get(context.WithoutCancel(ctx), branch.ID)
				if getErr != nil {
					status = branchmigrate.NewBranchMigrationStatus(branch.ID)
				}
				results[i] = branchmigrate.BranchResult{
					BranchID: branch.ID,
					Name:     branch.Name,
					State:    status.State,
					Err:      ctx.Err(),
				}
				return
			}
			defer func() { <-e.sem }()

			if e.collector != nil {
				e.collector.AddBranchesInProgress(1)
				defer e.collector.AddBranchesInProgress(-1)
			}

			status, opErr := op(ctx, branch.ID)
			results[i] = branchmigrate.BranchResult{
				BranchID: branch.ID,
				Name:     branch.Name,
				State:    status.State,
				Err:      opErr,
			}
		}(i, branch)
	}
	wg.Wait()

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}

	e.logger.WithFields(log.Fields{
		"operation": operation,
		"branches":  len(results),
		"failed":    failed,
	}).Info("Bulk operation finished")

	if failed > 0 {
		return results, errors.Errorf("%s failed on %d of %d branches", operation, failed, len(results))
	}
	return results, nil
}

// countBranchRun records a per-branch run outcome when a collector is wired.
func (e *Engine) countBranchRun(operation string, success bool) {
	if e.collector == nil {
		return
	}
	outcome := metrics.OutcomeFailure
	if success {
		outcome = metrics.OutcomeSuccess
	}
	e.collector.IncBranchRun(operation, outcome)
}

// recordFailure marks the status failed with the given error and persists it
// best-effort.
func (e *Engine) recordFailure(ctx context.Context, status branchmigrate.BranchMigrationStatus, cause error, logger log.FieldLogger) branchmigrate.BranchMigrationStatus {
	status.State = branchmigrate.StateFailed
	status.LastError = cause.Error()
	status.LastAttemptAt = time.Now().UTC()
	if err := e.saveStatus(ctx, status); err != nil {
		logger.WithError(err).Error("Failed to persist failed status")
	}
	logger.WithError(cause).Error("Branch operation failed")
	return status
}
