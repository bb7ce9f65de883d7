// Package logger provides the structured logging surface shared by the
// usagewatch services, a thin package-level wrapper over slog.
package logger

import (
	"log/slog"
	"os"
)

// Logger is the process-wide logger. Everything goes to stderr so log
// output never mixes with exported history on stdout.
var Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}
