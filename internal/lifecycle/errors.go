package lifecycle

import (
	"errors"
	"fmt"

	"github.com/phrazzld/pintask/internal/store"
)

// ErrTaskNotFailed is returned when a resolution flow targets a task that has
// not failed.
var ErrTaskNotFailed = errors.New("task has not failed")

// EngineError wraps errors from the lifecycle engine with context.
type EngineError struct {
	// Operation is the operation that failed (e.g., "reconcile", "create_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for EngineError.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lifecycle %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("lifecycle %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError.
// Sentinels callers branch on are returned directly without wrapping.
func NewEngineError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrTaskNotFailed):
		return ErrTaskNotFailed
	case errors.Is(err, store.ErrTaskNotFound):
		return store.ErrTaskNotFound
	}

	return &EngineError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
