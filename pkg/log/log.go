// Package log provides a structured logging facade for the ML core,
// backed by rs/zerolog.
//
// The engine and long-running fits log model_id, algorithm and data-shape
// fields so training runs can be correlated in aggregated logs. Algorithm
// packages receive a Logger through their options; the default is a no-op
// logger so library use stays silent unless explicitly wired.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Common structured field keys.
const (
	ModelIDKey   = "model_id"
	AlgorithmKey = "algorithm"
	TaskKey      = "task"
	SamplesKey   = "n_samples"
	FeaturesKey  = "n_features"
	DurationKey  = "duration_ms"
	OperationKey = "operation"
)

// Logger is the minimal structured-logging interface used across the core.
type Logger interface {
	// Debug logs detailed diagnostic information (per-iteration progress).
	Debug(msg string, fields ...any)

	// Info logs operational information (fit started, model saved).
	Info(msg string, fields ...any)

	// Warn logs recoverable conditions (convergence not reached).
	Warn(msg string, fields ...any)

	// Error logs failures; if the first field is an error it is attached
	// under the "error" key.
	Error(msg string, fields ...any)

	// With returns a Logger with the given key/value fields pre-populated.
	With(fields ...any) Logger
}

// New creates a Logger writing JSON lines to w at the given zerolog level.
func New(w io.Writer, level zerolog.Level) Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

// NewDefault creates a Logger writing to stderr at Info level.
func NewDefault() Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}

// NewNop creates a Logger that discards everything.
func NewNop() Logger {
	return &zerologLogger{zl: zerolog.Nop()}
}

// ParseLevel maps a config string to a zerolog level. Unknown strings map
// to Info rather than failing; logging must never block engine startup.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	emit(l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			emit(l.zl.Error().Err(err), msg, fields[1:])
			return
		}
	}
	emit(l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	zl := ctx.Logger()
	return &zerologLogger{zl: zl}
}

// emit attaches key/value pairs to the event and sends it. Keys that are
// not strings are skipped; a trailing odd value is ignored.
func emit(e *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case int64:
			e = e.Int64(key, v)
		case float64:
			e = e.Float64(key, v)
		case bool:
			e = e.Bool(key, v)
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
