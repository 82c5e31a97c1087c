// Package logger provides leveled, structured logging for sitesync.
// Messages go to stderr through log/slog. Debug messages are only emitted
// when verbose mode is enabled via the --verbose flag.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	format  string       = "text"
	output  io.Writer    = os.Stderr
	base    *slog.Logger = build()
)

// build creates the slog logger for the current settings (caller holds lock
// or is the package initialiser).
func build() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = build()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build()
}

// SetFormat selects "text" or "json" output.
func SetFormat(f string) error {
	if f != "text" && f != "json" {
		return fmt.Errorf("unknown log format %q", f)
	}
	mu.Lock()
	defer mu.Unlock()
	format = f
	base = build()
	return nil
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug logs a message if verbose mode is enabled.
func Debug(msg string, args ...any) {
	current().Debug(fmt.Sprintf(msg, args...))
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	current().Info(fmt.Sprintf(msg, args...))
}

// Warn logs a warning.
func Warn(msg string, args ...any) {
	current().Warn(fmt.Sprintf(msg, args...))
}

// Error logs an error.
func Error(msg string, args ...any) {
	current().Error(fmt.Sprintf(msg, args...))
}

// Logger carries attributes attached to every message, e.g. the worker or
// job a line belongs to.
type Logger struct {
	attrs []any
}

// With returns a Logger that adds the given key/value pairs to each message.
func With(kv ...any) *Logger {
	return &Logger{attrs: kv}
}

// With returns a child Logger with additional key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	attrs := make([]any, 0, len(l.attrs)+len(kv))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, kv...)
	return &Logger{attrs: attrs}
}

// Debug logs a message if verbose mode is enabled.
func (l *Logger) Debug(msg string, args ...any) {
	current().Debug(fmt.Sprintf(msg, args...), l.attrs...)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...any) {
	current().Info(fmt.Sprintf(msg, args...), l.attrs...)
}

// Warn logs a warning.
func (l *Logger) Warn(msg string, args ...any) {
	current().Warn(fmt.Sprintf(msg, args...), l.attrs...)
}

// Error logs an error.
func (l *Logger) Error(msg string, args ...any) {
	current().Error(fmt.Sprintf(msg, args...), l.attrs...)
}
