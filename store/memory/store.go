// Package memory provides an in-memory StatusStore for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fleetdb/branchmigrate"
)

// Store is an in-memory implementation of store.StatusStore. It is
// thread-safe via a sync.RWMutex and keeps deep copies so callers can mutate
// returned records freely.
type Store struct {
	mu       sync.RWMutex
	statuses map[string]branchmigrate.BranchMigrationStatus
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		statuses: make(map[string]branchmigrate.BranchMigrationStatus),
	}
}

// Get returns the status record for a branch, or a fresh pending record when
// none has been saved yet.
func (s *Store) Get(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[branchID]
	if !ok {
		return branchmigrate.NewBranchMigrationStatus(branchID), nil
	}
	return cloneStatus(status), nil
}

// GetAll returns every saved status record, ordered by branch id.
func (s *Store) GetAll(ctx context.Context) ([]branchmigrate.BranchMigrationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]branchmigrate.BranchMigrationStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		statuses = append(statuses, cloneStatus(status))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].BranchID < statuses[j].BranchID })
	return statuses, nil
}

// Save persists the status record, creating or replacing it.
func (s *Store) Save(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[status.BranchID] = cloneStatus(status)
	return nil
}

func cloneStatus(status branchmigrate.BranchMigrationStatus) branchmigrate.BranchMigrationStatus {
	clone := status
	clone.Applied = make([]int64, len(status.Applied))
	copy(clone.Applied, status.Applied)
	return clone
}
