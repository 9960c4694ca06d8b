package validator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fleetdb/branchmigrate"
	"github.com/pkg/errors"
)

// inspectLive reads the branch's live schema objects with engine-specific
// queries. System objects and primary-key indexes are filtered out so only
// catalog-manageable objects are compared.
func inspectLive(ctx context.Context, db *sql.DB, engine branchmigrate.EngineKind) (map[string]branchmigrate.SchemaObject, error) {
	switch engine {
	case branchmigrate.EngineSQLite:
		return inspectSQLite(ctx, db)
	case branchmigrate.EnginePostgres:
		return inspectPostgres(ctx, db)
	case branchmigrate.EngineMySQL:
		return inspectMySQL(ctx, db)
	case branchmigrate.EngineSQLServer:
		return inspectSQLServer(ctx, db)
	}
	return nil, &branchmigrate.ConfigurationError{Reason: "no schema inspector for engine " + string(engine)}
}

func inspectSQLite(ctx context.Context, db *sql.DB) (map[string]branchmigrate.SchemaObject, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objects := make(map[string]branchmigrate.SchemaObject)
	var tables []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, err
		}
		switch kind {
		case "table":
			tables = append(tables, name)
		case "index":
			obj := branchmigrate.SchemaObject{Kind: branchmigrate.ObjectIndex, Name: name}
			objects[obj.Key()] = obj
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, table := range tables {
		columns, err := sqliteColumns(ctx, db, table)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read columns of table %s", table)
		}
		obj := branchmigrate.SchemaObject{Kind: branchmigrate.ObjectTable, Name: table, Columns: columns}
		objects[obj.Key()] = obj
	}
	return objects, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) (map[string]string, error) {
	// PRAGMA does not take bind parameters; the table name comes from
	// sqlite_master, quoted defensively.
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]string)
	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultVal, &primaryKey); err != nil {
			return nil, err
		}
		columns[name] = columnType
	}
	return columns, rows.Err()
}

func inspectPostgres(ctx context.Context, db *sql.DB) (map[string]branchmigrate.SchemaObject, error) {
	objects, err := serverTables(ctx, db, `
		SELECT c.table_name, c.column_name, c.data_type
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`)
	if err != nil {
		return nil, err
	}

	return serverIndexes(ctx, db, objects, `
		SELECT indexname FROM pg_indexes
		WHERE schemaname = 'public' AND indexname NOT LIKE '%_pkey'
		ORDER BY indexname`)
}

func inspectMySQL(ctx context.Context, db *sql.DB) (map[string]branchmigrate.SchemaObject, error) {
	objects, err := serverTables(ctx, db, `
		SELECT c.table_name, c.column_name, c.data_type
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = DATABASE() AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`)
	if err != nil {
		return nil, err
	}

	return serverIndexes(ctx, db, objects, `
		SELECT DISTINCT index_name FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND index_name <> 'PRIMARY'
		ORDER BY index_name`)
}

func inspectSQLServer(ctx context.Context, db *sql.DB) (map[string]branchmigrate.SchemaObject, error) {
	objects, err := serverTables(ctx, db, `
		SELECT c.table_name, c.column_name, c.data_type
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = 'dbo' AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`)
	if err != nil {
		return nil, err
	}

	return serverIndexes(ctx, db, objects, `
		SELECT i.name FROM sys.indexes i
		JOIN sys.tables t ON i.object_id = t.object_id
		WHERE i.name IS NOT NULL AND i.is_primary_key = 0
		ORDER BY i.name`)
}

// serverTables folds a (table, column, type) result set into table objects.
func serverTables(ctx context.Context, db *sql.DB, query string) (map[string]branchmigrate.SchemaObject, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objects := make(map[string]branchmigrate.SchemaObject)
	for rows.Next() {
		var table, column, columnType string
		if err := rows.Scan(&table, &column, &columnType); err != nil {
			return nil, err
		}
		obj, ok := objects[string(branchmigrate.ObjectTable)+":"+table]
		if !ok {
			obj = branchmigrate.SchemaObject{
				Kind:    branchmigrate.ObjectTable,
				Name:    table,
				Columns: make(map[string]string),
			}
		}
		obj.Columns[column] = columnType
		objects[obj.Key()] = obj
	}
	return objects, rows.Err()
}

// serverIndexes adds index objects from a single-column result set.
func serverIndexes(ctx context.Context, db *sql.DB, objects map[string]branchmigrate.SchemaObject, query string) (map[string]branchmigrate.SchemaObject, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		obj := branchmigrate.SchemaObject{Kind: branchmigrate.ObjectIndex, Name: name}
		objects[obj.Key()] = obj
	}
	return objects, rows.Err()
}

// NormalizeType maps engine-specific type names onto the catalog's normalized
// vocabulary so the same declaration validates across engines.
func NormalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}

	switch t {
	case "int", "integer", "int2", "int4", "int8", "smallint", "bigint",
		"tinyint", "mediumint", "serial", "bigserial", "smallserial":
		return "integer"
	case "text", "varchar", "character varying", "char", "character",
		"nvarchar", "nchar", "ntext", "clob", "tinytext", "mediumtext", "longtext":
		return "text"
	case "real", "float", "float4", "float8", "double", "double precision":
		return "real"
	case "numeric", "decimal", "money", "smallmoney":
		return "numeric"
	case "blob", "bytea", "binary", "varbinary", "tinyblob", "mediumblob",
		"longblob", "image":
		return "blob"
	case "timestamp", "timestamptz", "timestamp with time zone",
		"timestamp without time zone", "datetime", "datetime2", "date",
		"time", "smalldatetime":
		return "timestamp"
	case "boolean", "bool", "bit":
		return "boolean"
	}
	return t
}
