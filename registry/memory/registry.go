// Package memory provides an in-memory BranchRegistry. The real tenant
// registry is an external collaborator; this implementation backs tests and
// single-node deployments driven by a branch manifest.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetdb/branchmigrate"
	"github.com/google/uuid"
)

// Registry is an in-memory implementation of branchmigrate.BranchRegistry.
// It fires descriptor-change notifications so the connection router can
// invalidate stale cache entries.
type Registry struct {
	mu          sync.RWMutex
	branches    map[string]branchmigrate.Branch
	subscribers []func(branchID string)
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		branches: make(map[string]branchmigrate.Branch),
	}
}

// AddBranch registers a new active branch and returns it with a minted id.
func (r *Registry) AddBranch(name string, descriptor branchmigrate.ConnectionDescriptor) branchmigrate.Branch {
	now := time.Now().UTC()
	branch := branchmigrate.Branch{
		ID:         uuid.New().String(),
		Name:       name,
		Descriptor: descriptor,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	r.mu.Lock()
	r.branches[branch.ID] = branch
	r.mu.Unlock()

	return branch
}

// Put inserts a branch as-is, minting an id and timestamps when absent.
// It is the loading path for externally-owned branch manifests.
func (r *Registry) Put(branch branchmigrate.Branch) branchmigrate.Branch {
	now := time.Now().UTC()
	if branch.ID == "" {
		branch.ID = uuid.New().String()
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = now
	}
	if branch.UpdatedAt.IsZero() {
		branch.UpdatedAt = now
	}

	r.mu.Lock()
	r.branches[branch.ID] = branch
	r.mu.Unlock()

	return branch
}

// GetBranch returns the branch with the given id.
// Returns branchmigrate.ErrBranchNotFound if no such branch exists.
func (r *Registry) GetBranch(ctx context.Context, id string) (branchmigrate.Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	branch, ok := r.branches[id]
	if !ok {
		return branchmigrate.Branch{}, branchmigrate.ErrBranchNotFound
	}
	return branch, nil
}

// ListActiveBranches returns all active branches, sorted by name.
func (r *Registry) ListActiveBranches(ctx context.Context) ([]branchmigrate.Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var branches []branchmigrate.Branch
	for _, branch := range r.branches {
		if branch.Active {
			branches = append(branches, branch)
		}
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// UpdateDescriptor replaces a branch's connection descriptor and notifies
// subscribers. Returns branchmigrate.ErrBranchNotFound for unknown ids.
func (r *Registry) UpdateDescriptor(id string, descriptor branchmigrate.ConnectionDescriptor) error {
	r.mu.Lock()
	branch, ok := r.branches[id]
	if !ok {
		r.mu.Unlock()
		return branchmigrate.ErrBranchNotFound
	}
	branch.Descriptor = descriptor
	branch.UpdatedAt = time.Now().UTC()
	r.branches[id] = branch
	subscribers := make([]func(string), len(r.subscribers))
	copy(subscribers, r.subscribers)
	r.mu.Unlock()

	for _, notify := range subscribers {
		notify(id)
	}
	return nil
}

// Deactivate soft-deactivates a branch. Branches are never hard-deleted.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	branch, ok := r.branches[id]
	if !ok {
		return branchmigrate.ErrBranchNotFound
	}
	branch.Active = false
	branch.UpdatedAt = time.Now().UTC()
	r.branches[id] = branch
	return nil
}

// OnDescriptorChange registers a callback fired after a branch's descriptor
// is updated. Callbacks run outside the registry lock.
func (r *Registry) OnDescriptorChange(fn func(branchID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}
