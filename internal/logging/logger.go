package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog with a fixed service name and printf-style helpers.
type Logger struct {
	serviceName string
	slog        *slog.Logger
}

// Options controls the handler behind a Logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New creates a logger for a service writing text at info level to stderr.
func New(serviceName string) *Logger {
	return NewWithOptions(serviceName, Options{})
}

// NewWithOptions creates a logger with an explicit level, format and sink.
func NewWithOptions(serviceName string, opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	return &Logger{
		serviceName: serviceName,
		slog:        slog.New(h).With("service", serviceName),
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewWithOptions("discard", Options{Output: io.Discard, Level: "error"})
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.slog.Debug(fmt.Sprintf(msg, args...))
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.slog.Info(fmt.Sprintf(msg, args...))
}

// Warn logs a warning
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.slog.Warn(fmt.Sprintf(msg, args...))
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.slog.Error(fmt.Sprintf(msg, args...))
}

// Fatal logs a fatal error and exits
func (l *Logger) Fatal(err error) {
	l.slog.Error("fatal", "error", err)
	os.Exit(1)
}

// With returns a logger that adds the key/value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{serviceName: l.serviceName, slog: l.slog.With(args...)}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
