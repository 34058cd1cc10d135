// Package logger provides structured logging functionality for the application
// using Go's standard library log/slog package. It configures the process-wide
// JSON logger and carries request- or run-scoped loggers through a context.Context.
package logger
