package branchmigrate

import (
	"fmt"
	"sort"
)

// ObjectKind classifies a schema object declared by a migration unit.
type ObjectKind string

const (
	// ObjectTable is a database table.
	ObjectTable ObjectKind = "table"

	// ObjectIndex is a database index.
	ObjectIndex ObjectKind = "index"
)

// SchemaObject declares one object a migration unit creates. The validator
// compares these declarations against the live schema.
type SchemaObject struct {
	// Kind is the object kind.
	Kind ObjectKind

	// Name is the object name as it appears in the database.
	Name string

	// Columns maps column names to normalized types ("integer", "text",
	// "real", "blob", "timestamp", "boolean"). Only meaningful for tables.
	Columns map[string]string
}

// Key returns the identity of the object within a schema.
func (o SchemaObject) Key() string {
	return string(o.Kind) + ":" + o.Name
}

// MigrationUnit is a named, ordered, reversible schema change. Units are
// append-only once published and immutable thereafter.
type MigrationUnit struct {
	// ID is the unique monotonic identifier of the unit.
	ID int64

	// Name is the display name of the unit.
	Name string

	// UpScript is the forward SQL script.
	UpScript string

	// DownScript is the backward (rollback) SQL script.
	DownScript string

	// Creates declares the schema objects the forward script produces.
	Creates []SchemaObject

	// Drops names the object keys (see SchemaObject.Key) the forward script
	// removes.
	Drops []string
}

// Catalog is the complete ordered set of published migration units.
// Units can only be appended, with strictly increasing ids.
type Catalog struct {
	units []MigrationUnit
}

// NewCatalog creates a catalog from the given units. The units must have
// strictly increasing ids; they are kept in the given order.
func NewCatalog(units ...MigrationUnit) (*Catalog, error) {
	c := &Catalog{}
	for _, unit := range units {
		if err := c.Append(unit); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append publishes a new unit at the end of the catalog. The unit id must be
// positive and greater than every previously published id.
func (c *Catalog) Append(unit MigrationUnit) error {
	if unit.ID <= 0 {
		return fmt.Errorf("migration unit id must be positive, got %d", unit.ID)
	}
	if n := len(c.units); n > 0 && unit.ID <= c.units[n-1].ID {
		return fmt.Errorf("migration unit id %d is not greater than last published id %d", unit.ID, c.units[n-1].ID)
	}
	c.units = append(c.units, unit)
	return nil
}

// Units returns a copy of the published units in catalog order.
func (c *Catalog) Units() []MigrationUnit {
	units := make([]MigrationUnit, len(c.units))
	copy(units, c.units)
	return units
}

// Unit returns the unit with the given id.
func (c *Catalog) Unit(id int64) (MigrationUnit, bool) {
	i := sort.Search(len(c.units), func(i int) bool { return c.units[i].ID >= id })
	if i < len(c.units) && c.units[i].ID == id {
		return c.units[i], true
	}
	return MigrationUnit{}, false
}

// Len returns the number of published units.
func (c *Catalog) Len() int {
	return len(c.units)
}

// Pending returns the units not yet in the applied list, in catalog order.
// It is a pure ordered-set difference with no side effects.
func (c *Catalog) Pending(applied []int64) []MigrationUnit {
	seen := make(map[int64]struct{}, len(applied))
	for _, id := range applied {
		seen[id] = struct{}{}
	}

	var pending []MigrationUnit
	for _, unit := range c.units {
		if _, ok := seen[unit.ID]; !ok {
			pending = append(pending, unit)
		}
	}
	return pending
}

// ExpectedObjects folds the declarations of every published unit, in catalog
// order, into the schema a fully migrated branch is expected to have.
func (c *Catalog) ExpectedObjects() map[string]SchemaObject {
	expected := make(map[string]SchemaObject)
	for _, unit := range c.units {
		for _, obj := range unit.Creates {
			expected[obj.Key()] = obj
		}
		for _, key := range unit.Drops {
			delete(expected, key)
		}
	}
	return expected
}
