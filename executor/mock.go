package executor

import (
	"context"
	"database/sql"
	"sync"

	"github.com/fleetdb/branchmigrate"
)

// MockRunner is a mock implementation of Runner for testing.
type MockRunner struct {
	mu            sync.Mutex
	ApplyFunc     func(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error
	RollbackFunc  func(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error
	ApplyCalls    []branchmigrate.MigrationUnit
	RollbackCalls []branchmigrate.MigrationUnit
}

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// Apply implements the Runner interface. It records the unit, then calls
// ApplyFunc if set and succeeds otherwise.
func (m *MockRunner) Apply(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error {
	m.mu.Lock()
	m.ApplyCalls = append(m.ApplyCalls, unit)
	m.mu.Unlock()

	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, db, unit)
	}
	return nil
}

// Rollback implements the Runner interface. It records the unit, then calls
// RollbackFunc if set and succeeds otherwise.
func (m *MockRunner) Rollback(ctx context.Context, db *sql.DB, unit branchmigrate.MigrationUnit) error {
	m.mu.Lock()
	m.RollbackCalls = append(m.RollbackCalls, unit)
	m.mu.Unlock()

	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx, db, unit)
	}
	return nil
}

// AppliedUnits returns a copy of the recorded Apply calls.
func (m *MockRunner) AppliedUnits() []branchmigrate.MigrationUnit {
	m.mu.Lock()
	defer m.mu.Unlock()

	units := make([]branchmigrate.MigrationUnit, len(m.ApplyCalls))
	copy(units, m.ApplyCalls)
	return units
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ApplyCalls = nil
	m.RollbackCalls = nil
}
