package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "zero value", cfg: Config{}},
		{name: "json to stdout", cfg: Config{Level: "debug", Format: "json", Output: "stdout"}},
		{name: "file with path", cfg: Config{Output: "file", FilePath: "/tmp/gather.log"}},
		{name: "unknown level", cfg: Config{Level: "verbose"}, wantErr: `unknown log level "verbose"`},
		{name: "unknown format", cfg: Config{Format: "xml"}, wantErr: `unknown log format "xml"`},
		{name: "unknown output", cfg: Config{Output: "syslog"}, wantErr: `unknown log output "syslog"`},
		{name: "file without path", cfg: Config{Output: "both"}, wantErr: `log output "both" requires a file path`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	logger, err := New(Config{Level: "loud"})

	assert.Error(t, err)
	assert.Nil(t, logger)
}

func TestNew_LevelFiltersEntries(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gather.log")

	logger, err := New(Config{Level: "debug", Format: "json", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)

	NewAdapter(logger).Info(context.Background(), "dispatched request", "requestID", "req-1", "collectors", 3)
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"dispatched request"`)
	assert.Contains(t, string(data), `"requestID":"req-1"`)
	assert.Contains(t, string(data), `"collectors":3`)
}

func TestAdapter_PassesKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewAdapter(zap.New(core))
	ctx := context.Background()

	adapter.Debug(ctx, "accepted partial", "requestID", "req-1", "collectorIndex", 2)
	adapter.Info(ctx, "all partials received", "requestID", "req-1")
	adapter.Error(ctx, "failed to write summary", "requestID", "req-1", "error", "disk full")

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "accepted partial", entries[0].Message)
	assert.Equal(t, "req-1", entries[0].ContextMap()["requestID"])
	assert.EqualValues(t, 2, entries[0].ContextMap()["collectorIndex"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "disk full", entries[2].ContextMap()["error"])
}

func TestAdapter_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	adapter := NewAdapter(zap.New(core))

	adapter.Debug(context.Background(), "ignored partial")

	assert.Equal(t, 0, logs.Len())
}
