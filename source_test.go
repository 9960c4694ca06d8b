package branchmigrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	t.Run("loads units with scripts and declarations", func(t *testing.T) {
		fsys := fstest.MapFS{
			"catalog.json": {Data: []byte(`{
				"units": [
					{
						"id": 1,
						"name": "create_users",
						"up": "0001_create_users.up.sql",
						"down": "0001_create_users.down.sql",
						"creates": [
							{"kind": "table", "name": "users", "columns": {"id": "integer", "email": "text"}}
						]
					},
					{
						"id": 2,
						"name": "drop_legacy",
						"up": "0002_drop_legacy.up.sql",
						"down": "0002_drop_legacy.down.sql",
						"drops": ["table:legacy"]
					}
				]
			}`)},
			"0001_create_users.up.sql":   {Data: []byte("CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);")},
			"0001_create_users.down.sql": {Data: []byte("DROP TABLE users;")},
			"0002_drop_legacy.up.sql":    {Data: []byte("DROP TABLE legacy;")},
			"0002_drop_legacy.down.sql":  {Data: []byte("CREATE TABLE legacy (id INTEGER PRIMARY KEY);")},
		}

		catalog, err := LoadCatalog(fsys)
		require.NoError(t, err)
		require.Equal(t, 2, catalog.Len())

		unit, ok := catalog.Unit(1)
		require.True(t, ok)
		assert.Equal(t, "create_users", unit.Name)
		assert.Contains(t, unit.UpScript, "CREATE TABLE users")
		assert.Contains(t, unit.DownScript, "DROP TABLE users")
		require.Len(t, unit.Creates, 1)
		assert.Equal(t, ObjectTable, unit.Creates[0].Kind)
		assert.Equal(t, "text", unit.Creates[0].Columns["email"])

		unit, ok = catalog.Unit(2)
		require.True(t, ok)
		assert.Equal(t, []string{"table:legacy"}, unit.Drops)
	})

	t.Run("missing manifest", func(t *testing.T) {
		_, err := LoadCatalog(fstest.MapFS{})
		assert.Error(t, err)
	})

	t.Run("missing script file", func(t *testing.T) {
		fsys := fstest.MapFS{
			"catalog.json": {Data: []byte(`{"units": [{"id": 1, "name": "a", "up": "missing.sql", "down": "missing.sql"}]}`)},
		}
		_, err := LoadCatalog(fsys)
		assert.Error(t, err)
	})

	t.Run("out-of-order manifest is rejected", func(t *testing.T) {
		fsys := fstest.MapFS{
			"catalog.json": {Data: []byte(`{"units": [
				{"id": 2, "name": "b", "up": "b.sql", "down": "b.sql"},
				{"id": 1, "name": "a", "up": "a.sql", "down": "a.sql"}
			]}`)},
			"a.sql": {Data: []byte("SELECT 1;")},
			"b.sql": {Data: []byte("SELECT 1;")},
		}
		_, err := LoadCatalog(fsys)
		assert.Error(t, err)
	})
}
