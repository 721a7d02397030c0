// Package logging builds *zap.Logger values (New, Nop, OrNop). Components
// take a logger through their constructors; nothing in this module holds a
// package-level logger global. internal/scheduler, internal/merge,
// internal/events, internal/emitter and internal/sync each fall back to
// zap.NewNop() on a nil logger with their own inline check.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the constructed logger's destination and verbosity.
type Options struct {
	// Debug enables debug-level output and a human-readable console
	// encoder; otherwise JSON output at info level is used.
	Debug bool
	// LogFile, if non-empty, additionally writes to this path (created
	// with its parent directories) alongside stderr.
	LogFile string
}

// New builds a *zap.Logger per Options. Construction failures (e.g. an
// unwritable log file path) return an error rather than panicking, so
// callers at the CLI boundary can report a USAGE_ERROR-shaped failure.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	if opts.Debug {
		level = zapcore.DebugLevel
		cfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core), nil
}

// Nop returns a logger that discards everything, used by tests and by any
// constructor whose caller passed nil.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// OrNop returns log if non-nil, otherwise a no-op logger.
func OrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
