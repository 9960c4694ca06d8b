package branchmigrate

import (
	"encoding/json"
	"io/fs"

	"github.com/pkg/errors"
)

// ManifestName is the file the catalog loader reads from a migration
// directory.
const ManifestName = "catalog.json"

type manifest struct {
	Units []manifestUnit `json:"units"`
}

type manifestUnit struct {
	ID      int64         `json:"id"`
	Name    string        `json:"name"`
	Up      string        `json:"up"`
	Down    string        `json:"down"`
	Creates []manifestObj `json:"creates,omitempty"`
	Drops   []string      `json:"drops,omitempty"`
}

type manifestObj struct {
	Kind    string            `json:"kind"`
	Name    string            `json:"name"`
	Columns map[string]string `json:"columns,omitempty"`
}

// LoadCatalog reads a catalog manifest and its referenced script files from
// the given filesystem. The manifest lists units in publication order; the up
// and down entries name the SQL script files relative to the filesystem root.
func LoadCatalog(fsys fs.FS) (*Catalog, error) {
	raw, err := fs.ReadFile(fsys, ManifestName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", ManifestName)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", ManifestName)
	}

	catalog := &Catalog{}
	for _, mu := range m.Units {
		up, err := fs.ReadFile(fsys, mu.Up)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read up script for unit %d", mu.ID)
		}
		down, err := fs.ReadFile(fsys, mu.Down)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read down script for unit %d", mu.ID)
		}

		unit := MigrationUnit{
			ID:         mu.ID,
			Name:       mu.Name,
			UpScript:   string(up),
			DownScript: string(down),
			Drops:      mu.Drops,
		}
		for _, obj := range mu.Creates {
			unit.Creates = append(unit.Creates, SchemaObject{
				Kind:    ObjectKind(obj.Kind),
				Name:    obj.Name,
				Columns: obj.Columns,
			})
		}

		if err := catalog.Append(unit); err != nil {
			return nil, errors.Wrapf(err, "invalid manifest %s", ManifestName)
		}
	}

	return catalog, nil
}
