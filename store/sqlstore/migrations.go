package sqlstore

import (
	"fmt"
	"strings"
)

// TableConfig configures the table names used by the gatherer.
type TableConfig struct {
	// RequestsTable stores one row per collection request.
	RequestsTable string

	// PartialsTable stores one row per (request, collector index).
	PartialsTable string

	// SummariesTable stores one row per processed request.
	SummariesTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		RequestsTable:  "gather_requests",
		PartialsTable:  "gather_partials",
		SummariesTable: "gather_summaries",
	}
}

// MigrationStatements returns the statements that create the gatherer tables.
// Timestamps are stored as unix nanoseconds so every dialect compares them the same way.
func MigrationStatements(d Dialect, config TableConfig) []string {
	switch d {
	case MySQL:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    topic TEXT NOT NULL,
    expected INT NOT NULL,
    received INT NOT NULL DEFAULT 0,
    state VARCHAR(16) NOT NULL DEFAULT 'waiting',
    created_at BIGINT NOT NULL,
    completed_at BIGINT NOT NULL DEFAULT 0,
    INDEX idx_%s_state_created (state, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, config.RequestsTable, config.RequestsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    request_id VARCHAR(64) NOT NULL,
    collector_index INT NOT NULL,
    items TEXT NOT NULL,
    arrived_at BIGINT NOT NULL,
    PRIMARY KEY (request_id, collector_index)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, config.PartialsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    request_id VARCHAR(64) NOT NULL PRIMARY KEY,
    topic TEXT NOT NULL,
    item_count INT NOT NULL,
    processed_at BIGINT NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, config.SummariesTable),
		}
	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    topic TEXT NOT NULL,
    expected INTEGER NOT NULL,
    received INTEGER NOT NULL DEFAULT 0,
    state VARCHAR(16) NOT NULL DEFAULT 'waiting' CHECK (state IN ('waiting', 'complete')),
    created_at BIGINT NOT NULL,
    completed_at BIGINT NOT NULL DEFAULT 0
)`, config.RequestsTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_state_created ON %s (state, created_at)`,
				config.RequestsTable, config.RequestsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    request_id VARCHAR(64) NOT NULL,
    collector_index INTEGER NOT NULL,
    items TEXT NOT NULL,
    arrived_at BIGINT NOT NULL,
    PRIMARY KEY (request_id, collector_index)
)`, config.PartialsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    request_id VARCHAR(64) NOT NULL PRIMARY KEY,
    topic TEXT NOT NULL,
    item_count INTEGER NOT NULL,
    processed_at BIGINT NOT NULL
)`, config.SummariesTable),
		}
	}
}

// MigrationUp returns the SQL script that creates the gatherer tables.
func MigrationUp(d Dialect, config TableConfig) string {
	return strings.Join(MigrationStatements(d, config), ";\n\n") + ";\n"
}

// MigrationDown returns the SQL script that drops the gatherer tables.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s;

DROP TABLE IF EXISTS %s;

DROP TABLE IF EXISTS %s;
`, config.SummariesTable, config.PartialsTable, config.RequestsTable)
}
