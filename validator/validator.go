// Package validator independently compares a branch's live schema against
// the shape the catalog is expected to have produced. It is read-only and
// deliberately ignores the status store: status tracks what ran, validation
// confirms what exists, and drift between the two stays observable.
package validator

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/fleetdb/branchmigrate"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Resolver resolves a branch to a database handle. The connection router
// satisfies this.
type Resolver interface {
	Resolve(ctx context.Context, branch branchmigrate.Branch) (*sql.DB, error)
}

// Config configures a Validator.
type Config struct {
	// Registry is the tenant registry (required).
	Registry branchmigrate.BranchRegistry

	// Catalog declares the expected schema objects (required).
	Catalog *branchmigrate.Catalog

	// Router resolves branches to database handles (required).
	Router Resolver

	// Logger is for observability (optional).
	Logger log.FieldLogger
}

// Validator inspects live branch schemas.
type Validator struct {
	registry branchmigrate.BranchRegistry
	catalog  *branchmigrate.Catalog
	router   Resolver
	logger   log.FieldLogger
}

// New creates a Validator, validating required configuration.
func New(cfg Config) (*Validator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	return &Validator{
		registry: cfg.Registry,
		catalog:  cfg.Catalog,
		router:   cfg.Router,
		logger:   cfg.Logger,
	}, nil
}

// Validate inspects the branch's live schema and compares it object-by-object
// against the catalog's expected shape. It never mutates migration status.
func (v *Validator) Validate(ctx context.Context, branchID string) (branchmigrate.ValidationResult, error) {
	branch, err := v.registry.GetBranch(ctx, branchID)
	if err != nil {
		return branchmigrate.ValidationResult{}, err
	}

	db, err := v.router.Resolve(ctx, branch)
	if err != nil {
		return branchmigrate.ValidationResult{}, err
	}

	live, err := inspectLive(ctx, db, branch.Descriptor.Engine)
	if err != nil {
		return branchmigrate.ValidationResult{}, errors.Wrap(err, "failed to inspect live schema")
	}

	discrepancies := Compare(v.catalog.ExpectedObjects(), live)
	result := branchmigrate.ValidationResult{
		BranchID:      branchID,
		Valid:         len(discrepancies) == 0,
		Discrepancies: discrepancies,
	}

	v.logger.WithField("branch", branchID).WithField("discrepancies", len(discrepancies)).Info("Schema validation finished")
	return result, nil
}

// Compare diffs the expected objects against the live ones. The result is
// deterministic: discrepancies are ordered by object key.
func Compare(expected, live map[string]branchmigrate.SchemaObject) []branchmigrate.Discrepancy {
	var discrepancies []branchmigrate.Discrepancy

	for _, key := range sortedKeys(expected) {
		want := expected[key]
		got, ok := live[key]
		if !ok {
			discrepancies = append(discrepancies, branchmigrate.Discrepancy{
				Kind:   branchmigrate.DiscrepancyMissingObject,
				Object: objectLabel(want),
				Detail: fmt.Sprintf("%s %s declared by the catalog does not exist", want.Kind, want.Name),
			})
			continue
		}
		if want.Kind == branchmigrate.ObjectTable {
			discrepancies = append(discrepancies, compareColumns(want, got)...)
		}
	}

	for _, key := range sortedKeys(live) {
		if _, ok := expected[key]; !ok {
			got := live[key]
			discrepancies = append(discrepancies, branchmigrate.Discrepancy{
				Kind:   branchmigrate.DiscrepancyUnexpectedObject,
				Object: objectLabel(got),
				Detail: fmt.Sprintf("%s %s exists but is not declared by the catalog", got.Kind, got.Name),
			})
		}
	}

	return discrepancies
}

func compareColumns(want, got branchmigrate.SchemaObject) []branchmigrate.Discrepancy {
	var discrepancies []branchmigrate.Discrepancy

	wantCols := make([]string, 0, len(want.Columns))
	for col := range want.Columns {
		wantCols = append(wantCols, col)
	}
	sort.Strings(wantCols)

	for _, col := range wantCols {
		gotType, ok := got.Columns[col]
		if !ok {
			discrepancies = append(discrepancies, branchmigrate.Discrepancy{
				Kind:   branchmigrate.DiscrepancyMissingObject,
				Object: fmt.Sprintf("column %s.%s", want.Name, col),
				Detail: fmt.Sprintf("column %s declared by the catalog does not exist on table %s", col, want.Name),
			})
			continue
		}
		wantType := NormalizeType(want.Columns[col])
		if NormalizeType(gotType) != wantType {
			discrepancies = append(discrepancies, branchmigrate.Discrepancy{
				Kind:   branchmigrate.DiscrepancyTypeMismatch,
				Object: fmt.Sprintf("column %s.%s", want.Name, col),
				Detail: fmt.Sprintf("expected type %s, found %s", wantType, NormalizeType(gotType)),
			})
		}
	}

	gotCols := make([]string, 0, len(got.Columns))
	for col := range got.Columns {
		gotCols = append(gotCols, col)
	}
	sort.Strings(gotCols)

	for _, col := range gotCols {
		if _, ok := want.Columns[col]; !ok {
			discrepancies = append(discrepancies, branchmigrate.Discrepancy{
				Kind:   branchmigrate.DiscrepancyUnexpectedObject,
				Object: fmt.Sprintf("column %s.%s", want.Name, col),
				Detail: fmt.Sprintf("column %s exists on table %s but is not declared by the catalog", col, want.Name),
			})
		}
	}

	return discrepancies
}

func objectLabel(obj branchmigrate.SchemaObject) string {
	return fmt.Sprintf("%s %s", obj.Kind, obj.Name)
}

func sortedKeys(m map[string]branchmigrate.SchemaObject) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
