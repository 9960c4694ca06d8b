package sqlite

import "fmt"

// TableConfig configures the table name used by the status ledger.
type TableConfig struct {
	// StatusTable is the name of the table storing branch migration status.
	StatusTable string
}

// DefaultTableConfig returns the default ledger table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		StatusTable: "branch_migration_status",
	}
}

// MigrationUp returns the SQL to create the ledger table. The applied list is
// stored as a JSON array so the ordered history survives restarts intact.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create the branch migration status ledger
CREATE TABLE IF NOT EXISTS %s (
    branch_id       TEXT PRIMARY KEY,
    applied_raw     TEXT NOT NULL DEFAULT '[]',
    last_applied    INTEGER NOT NULL DEFAULT 0,
    last_attempt_at INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT NOT NULL DEFAULT '',
    state           TEXT NOT NULL DEFAULT 'pending'
);

-- Index for filtering branches by state
CREATE INDEX IF NOT EXISTS idx_%s_state ON %s(state);
`, config.StatusTable, config.StatusTable, config.StatusTable)
}

// MigrationDown returns the SQL to drop the ledger table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS idx_%s_state;
DROP TABLE IF EXISTS %s;
`, config.StatusTable, config.StatusTable)
}
