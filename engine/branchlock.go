package engine

import "sync"

// branchLocks provides per-branch mutual exclusion for apply and rollback
// operations. The map mutex is held only for map operations; branch work
// never runs under it.
type branchLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newBranchLocks() *branchLocks {
	return &branchLocks{
		held: make(map[string]struct{}),
	}
}

// TryLock acquires the lock for a branch id without blocking. It returns
// false when another operation already holds the branch.
func (l *branchLocks) TryLock(branchID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[branchID]; ok {
		return false
	}
	l.held[branchID] = struct{}{}
	return true
}

// Unlock releases the lock for a branch id.
func (l *branchLocks) Unlock(branchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, branchID)
}
