// Package logging provides structured logging for masterbase.
// It wraps the standard library slog package with service defaults
// and convenience functions.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Level represents log levels
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Logger is the masterbase structured logger
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	output io.Writer
}

// Config holds logger configuration
type Config struct {
	// Level is the minimum log level
	Level Level

	// Output is the log output destination
	Output io.Writer

	// Format is the log format ("json" or "text")
	Format string

	// AddSource adds source file and line to log entries
	AddSource bool

	// TimeFormat is the time format for text output
	TimeFormat string
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Output:     os.Stderr,
		Format:     "text",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger
func Init(cfg *Config) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	defaultLogger = &Logger{
		Logger: slog.New(handler),
		level:  levelVar,
		output: cfg.Output,
	}

	// Set as default slog logger
	slog.SetDefault(defaultLogger.Logger)
}

// Default returns the default logger, initializing if necessary
func Default() *Logger {
	once.Do(func() {
		if defaultLogger == nil {
			Init(nil)
		}
	})
	return defaultLogger
}

// SetLevel changes the log level at runtime
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	return l.level.Level()
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
		level:  l.level,
		output: l.output,
	}
}

// =============================================================================
// Convenience Functions (use default logger)
// =============================================================================

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// =============================================================================
// Specialized Loggers for masterbase Components
// =============================================================================

// ScannerLogger returns a logger for the stream scanner
func ScannerLogger() *Logger {
	return Default().WithComponent("scanner")
}

// ModelLogger returns a logger for reference model loading and training
func ModelLogger() *Logger {
	return Default().WithComponent("model")
}

// MetricsLogger returns a logger for the metrics endpoint
func MetricsLogger() *Logger {
	return Default().WithComponent("metrics")
}

// =============================================================================
// Structured Field Helpers
// =============================================================================

// Stream returns log attributes for a scanned stream
func Stream(id string, bytes int64, likelihood float64, zeroRun int, anomalous bool) slog.Attr {
	return slog.Group("stream",
		slog.String("id", id),
		slog.Int64("bytes", bytes),
		slog.Float64("likelihood", likelihood),
		slog.Int("longest_zero_run", zeroRun),
		slog.Bool("anomalous", anomalous),
	)
}
