package store

import (
	"context"
	"sync"

	"github.com/fleetdb/branchmigrate"
)

// MockStatusStore is a configurable mock implementation of StatusStore for
// use in tests. It allows setting up return values, tracking method calls,
// and injecting errors for testing error paths.
type MockStatusStore struct {
	mu sync.RWMutex

	// GetFunc is called by Get if set.
	GetFunc func(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error)

	// GetAllFunc is called by GetAll if set.
	GetAllFunc func(ctx context.Context) ([]branchmigrate.BranchMigrationStatus, error)

	// SaveFunc is called by Save if set.
	SaveFunc func(ctx context.Context, status branchmigrate.BranchMigrationStatus) error

	// Call tracking
	GetCalls  []string
	SaveCalls []branchmigrate.BranchMigrationStatus
}

// NewMockStatusStore creates a new mock status store.
func NewMockStatusStore() *MockStatusStore {
	return &MockStatusStore{}
}

// Get implements StatusStore.
func (m *MockStatusStore) Get(ctx context.Context, branchID string) (branchmigrate.BranchMigrationStatus, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, branchID)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, branchID)
	}

	return branchmigrate.NewBranchMigrationStatus(branchID), nil
}

// GetAll implements StatusStore.
func (m *MockStatusStore) GetAll(ctx context.Context) ([]branchmigrate.BranchMigrationStatus, error) {
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx)
	}

	return []branchmigrate.BranchMigrationStatus{}, nil
}

// Save implements StatusStore.
func (m *MockStatusStore) Save(ctx context.Context, status branchmigrate.BranchMigrationStatus) error {
	m.mu.Lock()
	m.SaveCalls = append(m.SaveCalls, status)
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, status)
	}

	return nil
}

// Reset clears all call tracking data.
func (m *MockStatusStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls = nil
	m.SaveCalls = nil
}
