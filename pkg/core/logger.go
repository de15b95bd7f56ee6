package core

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})
}

// NewZapLogger adapts a zap logger to Logger.
// *zap.SugaredLogger already has the full method set.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l.Sugar()
}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger {
	return zap.NewNop().Sugar()
}

// NewDefaultLogger creates a production JSON logger at info level,
// falling back to a no-op logger if zap cannot be built
func NewDefaultLogger() Logger {
	l, err := BuildZap("info", false)
	if err != nil {
		return NewNopLogger()
	}
	return NewZapLogger(l)
}

// BuildZap builds a zap logger for the given level name
// ("debug", "info", "warn", "error"). Development mode switches to the
// console encoder with caller and stacktrace annotations.
func BuildZap(level string, development bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}
