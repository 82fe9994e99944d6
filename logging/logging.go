// Package logging builds zap loggers and adapts them to es.Logger.
package logging

import (
	"context"
	"fmt"
	"os"

	"github.com/getpup/pupsourcing/es"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures a zap logger.
type Config struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `yaml:"level"`

	// Format is json or console (default: console).
	Format string `yaml:"format"`

	// Output is stdout, file or both (default: stdout).
	Output string `yaml:"output"`

	// FilePath is the log file, required when Output writes to a file.
	FilePath string `yaml:"file_path"`

	// MaxSize is the size in megabytes at which the file is rotated.
	MaxSize int `yaml:"max_size"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `yaml:"max_backups"`

	// MaxAge is the number of days to keep rotated files.
	MaxAge int `yaml:"max_age"`
}

// DefaultConfig returns a console logger at info level writing to stdout.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Validate checks that the configuration can build a logger.
func (c Config) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	switch c.Output {
	case "", "stdout":
	case "file", "both":
		if c.FilePath == "" {
			return fmt.Errorf("log output %q requires a file path", c.Output)
		}
	default:
		return fmt.Errorf("unknown log output %q", c.Output)
	}
	return nil
}

// New creates a zap logger from the configuration.
// File output is rotated by lumberjack.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := parseLevel(cfg.Level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		writer := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}

	// Skip the Adapter frame so callers show up in the caller field.
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)), nil
}

// Adapter implements es.Logger on top of a zap logger.
// Key-value pairs are passed through as structured fields.
type Adapter struct {
	logger *zap.SugaredLogger
}

// Compile-time check that Adapter implements es.Logger.
var _ es.Logger = (*Adapter)(nil)

// NewAdapter wraps a zap logger.
func NewAdapter(logger *zap.Logger) *Adapter {
	return &Adapter{logger: logger.Sugar()}
}

// Debug implements es.Logger.
func (a *Adapter) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	a.logger.Debugw(msg, keyvals...)
}

// Info implements es.Logger.
func (a *Adapter) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	a.logger.Infow(msg, keyvals...)
}

// Error implements es.Logger.
func (a *Adapter) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	a.logger.Errorw(msg, keyvals...)
}

// Sync flushes buffered log entries.
func (a *Adapter) Sync() error {
	return a.logger.Sync()
}
