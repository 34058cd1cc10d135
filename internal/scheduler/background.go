package scheduler

import (
	"errors"
	"time"
)

// Background task identifiers.
const (
	ProcessingTaskID = "processing"
	RefreshTaskID    = "refresh"
)

// ErrSubmissionFailed is returned when a background request cannot be queued.
// It is logged and never shown to the user; the heartbeat remains as fallback.
var ErrSubmissionFailed = errors.New("background task submission failed")

// Request asks the background scheduler to invoke the handler for ID no
// earlier than EarliestBegin. Submitting again for the same ID replaces the
// pending request.
type Request struct {
	ID            string
	EarliestBegin time.Time
}

// BackgroundTask is one invocation handed to a registered handler.
// The handler must call SetTaskCompleted exactly once.
type BackgroundTask interface {
	ID() string
	// SetExpirationHandler installs the function called when the invocation
	// runs out of time.
	SetExpirationHandler(fn func())
	SetTaskCompleted(success bool)
}

// BackgroundScheduler is the deferred-execution service. Invocations are
// opportunistic: they may arrive late or never.
// Version: 1.0
type BackgroundScheduler interface {
	Register(id string, handler func(BackgroundTask)) error
	Submit(req Request) error
}
