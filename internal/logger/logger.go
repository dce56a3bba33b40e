// Package logger carries the teacher's slog wrapper over unchanged: a
// JSON handler over stdout, initialized once via sync.Once, with small
// package-level Info/Warn/Error helpers so callers that don't hold a
// *slog.Logger reference can still log through the same handler. The
// Debug wrapper was dropped since nothing in this tree calls it (every
// caller that wants Debug uses the *slog.Logger from Get() directly).
package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init initializes the default logger with a JSON handler writing to os.Stdout.
// It ensures that the logger is initialized only once.
func Init() {
	once.Do(func() {
		defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug, // Default to Debug level, can be made configurable
		}))
		slog.SetDefault(defaultLogger) // Optionally set as the default logger for the slog package
		defaultLogger.Info("Logger initialized")
	})
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() *slog.Logger {
	Init() // Ensures logger is initialized
	return defaultLogger
}

// Info logs an informational message using the default logger.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	Get().Error(msg, args...)
}
