package postgres

import "fmt"

// TableConfig configures the table name used by the status ledger.
type TableConfig struct {
	// StatusTable is the name of the table storing branch migration status.
	StatusTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		StatusTable: "branch_migration_status",
	}
}

// MigrationUp returns the SQL to create the status ledger table.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create branch migration status ledger
CREATE TABLE IF NOT EXISTS %s (
    branch_id TEXT PRIMARY KEY,
    applied JSONB NOT NULL DEFAULT '[]',
    last_applied BIGINT NOT NULL DEFAULT 0,
    last_attempt_at BIGINT NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL
);

-- Index for filtering branches by lifecycle state
CREATE INDEX IF NOT EXISTS idx_%s_state ON %s(state);
`, config.StatusTable, config.StatusTable, config.StatusTable)
}

// MigrationDown returns the SQL to drop the status ledger table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, config.StatusTable)
}
