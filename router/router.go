// Package router builds and caches engine-specific database handles for
// branches. Handles are cached per branch id; concurrent resolutions for the
// same branch share a single construction, and the cache lock is never held
// across I/O.
package router

import (
	"context"
	"database/sql"
	"sync"

	"github.com/fleetdb/branchmigrate"
	log "github.com/sirupsen/logrus"
)

// BuilderFunc constructs an unverified database handle for a branch. The
// router pings the handle after construction; builders should not perform
// I/O themselves.
type BuilderFunc func(branch branchmigrate.Branch) (*sql.DB, error)

// Config configures a Router.
type Config struct {
	// DataRoot is the directory holding embedded-engine database files.
	DataRoot string

	// Logger is for observability (optional).
	Logger log.FieldLogger
}

// Option customizes a Router.
type Option func(*Router)

// WithBuilder overrides the connection builder for an engine kind. Intended
// for tests that substitute handle construction with doubles.
func WithBuilder(kind branchmigrate.EngineKind, fn BuilderFunc) Option {
	return func(r *Router) {
		r.builders[kind] = fn
	}
}

// Router resolves branches to cached database handles.
type Router struct {
	dataRoot string
	logger   log.FieldLogger
	builders map[branchmigrate.EngineKind]BuilderFunc

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is one cached handle. Construction happens under the entry's own
// sync.Once so the router lock only ever guards map operations.
type entry struct {
	once       sync.Once
	descriptor branchmigrate.ConnectionDescriptor
	db         *sql.DB
	err        error
}

// close waits for any in-flight construction and closes the handle.
func (e *entry) close(logger log.FieldLogger) {
	e.once.Do(func() {})
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			logger.WithError(err).Warn("failed to close database handle")
		}
	}
}

// New creates a Router with the default engine builder table.
func New(cfg Config, opts ...Option) *Router {
	r := &Router{
		dataRoot: cfg.DataRoot,
		logger:   cfg.Logger,
		entries:  make(map[string]*entry),
	}
	if r.logger == nil {
		r.logger = log.StandardLogger()
	}

	r.builders = map[branchmigrate.EngineKind]BuilderFunc{
		branchmigrate.EngineSQLite:    r.buildSQLite,
		branchmigrate.EnginePostgres:  buildPostgres,
		branchmigrate.EngineMySQL:     buildMySQL,
		branchmigrate.EngineSQLServer: buildSQLServer,
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a database handle for the branch, building and caching one
// if necessary. A cached handle is discarded and rebuilt when the branch's
// descriptor has changed since it was built. Configuration errors are
// returned immediately and never cached; failed constructions are likewise
// not cached.
func (r *Router) Resolve(ctx context.Context, branch branchmigrate.Branch) (*sql.DB, error) {
	if err := branch.Descriptor.Validate(); err != nil {
		return nil, err
	}
	builder, ok := r.builders[branch.Descriptor.Engine]
	if !ok {
		return nil, &branchmigrate.ConfigurationError{
			Reason: "no connection builder registered for engine " + string(branch.Descriptor.Engine),
		}
	}

	var stale *entry
	r.mu.Lock()
	e := r.entries[branch.ID]
	if e != nil && !e.descriptor.Equal(branch.Descriptor) {
		stale = e
		e = nil
		delete(r.entries, branch.ID)
	}
	if e == nil {
		e = &entry{descriptor: branch.Descriptor}
		r.entries[branch.ID] = e
	}
	r.mu.Unlock()

	if stale != nil {
		r.logger.WithField("branch", branch.ID).Info("Connection descriptor changed, discarding cached handle")
		stale.close(r.logger)
	}

	e.once.Do(func() {
		db, err := builder(branch)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr != nil {
				_ = db.Close()
				db = nil
				err = &branchmigrate.ConnectivityError{Err: pingErr}
			}
		}
		e.db, e.err = db, err
	})

	if e.err != nil {
		r.mu.Lock()
		if r.entries[branch.ID] == e {
			delete(r.entries, branch.ID)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.db, nil
}

// Invalidate drops the cached handle for a branch, closing it if one was
// built. Wire this to the registry's descriptor-change notification.
func (r *Router) Invalidate(branchID string) {
	r.mu.Lock()
	e := r.entries[branchID]
	delete(r.entries, branchID)
	r.mu.Unlock()

	if e != nil {
		e.close(r.logger)
	}
}

// InvalidateAll drops every cached handle.
func (r *Router) InvalidateAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.close(r.logger)
	}
}
