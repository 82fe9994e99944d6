package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/getpup/pupsourcing-gather/store/sqlstore"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all table names to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.RequestsTable, "RequestsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.PartialsTable, "PartialsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.SummariesTable, "SummariesTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the gatherer tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// RequestsTable holds one row per collection request
	RequestsTable string

	// PartialsTable holds one row per (request, collector index)
	PartialsTable string

	// SummariesTable holds the processing summary of completed requests
	SummariesTable string
}

// DefaultConfig returns the default configuration for gatherer migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	tables := sqlstore.DefaultTableConfig()
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_gather.sql", timestamp),
		RequestsTable:  tables.RequestsTable,
		PartialsTable:  tables.PartialsTable,
		SummariesTable: tables.SummariesTable,
	}
}

// Tables returns the table names as a sqlstore.TableConfig.
func (c Config) Tables() sqlstore.TableConfig {
	return sqlstore.TableConfig{
		RequestsTable:  c.RequestsTable,
		PartialsTable:  c.PartialsTable,
		SummariesTable: c.SummariesTable,
	}
}

// Generate writes a migration file for the given dialect.
func Generate(dialect sqlstore.Dialect, config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(GenerateSQL(dialect, config)), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(sqlstore.Postgres, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(sqlstore.MySQL, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(sqlstore.SQLite, config)
}

// GenerateSQL returns the migration script without writing it.
// The statements are the ones sqlstore.Store.Migrate runs.
func GenerateSQL(dialect sqlstore.Dialect, config *Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "-- Gather Partial Store Migration\n")
	fmt.Fprintf(&b, "-- Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "-- Database: %s\n", dialectTitle(dialect))
	b.WriteString("--\n")
	fmt.Fprintf(&b, "-- %s: one row per request, locked while a partial is recorded\n", config.RequestsTable)
	fmt.Fprintf(&b, "-- %s: first partial per (request_id, collector_index) wins\n", config.PartialsTable)
	fmt.Fprintf(&b, "-- %s: write-once processing summaries\n", config.SummariesTable)
	b.WriteString("-- Timestamps are unix nanoseconds.\n\n")
	b.WriteString(sqlstore.MigrationUp(dialect, config.Tables()))

	return b.String()
}

func dialectTitle(d sqlstore.Dialect) string {
	switch d {
	case sqlstore.Postgres:
		return "PostgreSQL"
	case sqlstore.MySQL:
		return "MySQL/MariaDB"
	case sqlstore.SQLite:
		return "SQLite"
	default:
		return string(d)
	}
}
