package migrations

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing-gather/store/sqlstore"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "test_migration.sql",
		RequestsTable:  "gather_requests",
		PartialsTable:  "gather_partials",
		SummariesTable: "gather_summaries",
	}
}

func readGenerated(t *testing.T, config Config) string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	require.NoError(t, err)
	return string(content)
}

func TestGeneratePostgres(t *testing.T) {
	config := testConfig(t)

	require.NoError(t, GeneratePostgres(&config))

	sql := readGenerated(t, config)
	assert.Contains(t, sql, "-- Database: PostgreSQL")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS gather_requests")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS gather_partials")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS gather_summaries")
	assert.Contains(t, sql, "CREATE INDEX IF NOT EXISTS idx_gather_requests_state_created")
	assert.Contains(t, sql, "PRIMARY KEY (request_id, collector_index)")
	assert.NotContains(t, sql, "ENGINE=InnoDB")
}

func TestGenerateMySQL(t *testing.T) {
	config := testConfig(t)

	require.NoError(t, GenerateMySQL(&config))

	sql := readGenerated(t, config)
	assert.Contains(t, sql, "-- Database: MySQL/MariaDB")
	assert.Contains(t, sql, "ENGINE=InnoDB")
	assert.Contains(t, sql, "INDEX idx_gather_requests_state_created (state, created_at)")
	assert.NotContains(t, sql, "CREATE INDEX")
}

func TestGenerateSQLite(t *testing.T) {
	config := testConfig(t)

	require.NoError(t, GenerateSQLite(&config))

	sql := readGenerated(t, config)
	assert.Contains(t, sql, "-- Database: SQLite")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS gather_requests")
}

func TestGenerate_CustomTableNames(t *testing.T) {
	config := testConfig(t)
	config.RequestsTable = "search_requests"
	config.PartialsTable = "search_partials"
	config.SummariesTable = "search_summaries"

	require.NoError(t, GeneratePostgres(&config))

	sql := readGenerated(t, config)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS search_requests")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS search_partials")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS search_summaries")
	assert.NotContains(t, sql, "gather_")
}

func TestGenerate_CreatesOutputFolder(t *testing.T) {
	config := testConfig(t)
	config.OutputFolder = filepath.Join(config.OutputFolder, "nested", "migrations")

	require.NoError(t, GenerateSQLite(&config))

	_, err := os.Stat(filepath.Join(config.OutputFolder, config.OutputFilename))
	assert.NoError(t, err)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "migrations", config.OutputFolder)
	assert.True(t, strings.HasSuffix(config.OutputFilename, "_init_gather.sql"))
	assert.Equal(t, sqlstore.DefaultTableConfig(), config.Tables())
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "simple", value: "requests"},
		{name: "with underscore and digits", value: "gather_requests_v2"},
		{name: "empty", value: "", wantErr: true},
		{name: "leading digit", value: "1requests", wantErr: true},
		{name: "leading underscore", value: "_requests", wantErr: true},
		{name: "injection", value: "requests; DROP TABLE users", wantErr: true},
		{name: "schema qualified", value: "gather.requests", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIdentifier(tt.value, "RequestsTable")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerate_RejectsInvalidTableNames(t *testing.T) {
	mutations := map[string]func(c *Config){
		"RequestsTable":  func(c *Config) { c.RequestsTable = "bad-name" },
		"PartialsTable":  func(c *Config) { c.PartialsTable = "" },
		"SummariesTable": func(c *Config) { c.SummariesTable = "x y" },
	}

	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			config := testConfig(t)
			mutate(&config)

			err := GeneratePostgres(&config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), field)

			_, statErr := os.Stat(filepath.Join(config.OutputFolder, config.OutputFilename))
			assert.True(t, os.IsNotExist(statErr), "no file is written for an invalid configuration")
		})
	}
}

func TestGeneratedSQLite_AppliesAndServesStore(t *testing.T) {
	config := testConfig(t)
	config.RequestsTable = "app_requests"
	config.PartialsTable = "app_partials"
	config.SummariesTable = "app_summaries"
	require.NoError(t, GenerateSQLite(&config))

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	s := sqlstore.NewWithConfig(db, sqlstore.SQLite, config.Tables())

	_, err = db.Exec(readGenerated(t, config))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Register(ctx, gather.CollectionRequest{ID: "req-1", Topic: "weather", ExpectedPartials: 1}))

	res, err := s.RecordAndCheck(ctx, gather.PartialResult{RequestID: "req-1", CollectorIndex: 0, Items: []int{4, 2}})
	require.NoError(t, err)
	require.True(t, res.JustCompleted())
	assert.Equal(t, []int{4, 2}, res.Aggregate.Items)
}
