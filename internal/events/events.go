package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// TypeTaskCreated is emitted after a new task is stored.
	TypeTaskCreated = "task.created"
	// TypeTasksFailed carries every failed task surfaced by one reconciliation run.
	TypeTasksFailed = "tasks.failed"
	// TypeTaskCompleted is emitted when a task is reached before its deadline.
	TypeTaskCompleted = "task.completed"
	// TypeWagerForfeited is emitted once per task at its active->failed transition.
	// A balance ledger consumes it to record the lost wager.
	TypeWagerForfeited = "wager.forfeited"
	// TypeWagerRefunded is emitted when a failed task is disputed as a false failure.
	TypeWagerRefunded = "wager.refunded"
	// TypeAlertRaised asks the UI to show an alert.
	TypeAlertRaised = "alert.raised"
)

// Event is a notification published on the bus.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// TaskCreatedPayload carries a newly stored task.
type TaskCreatedPayload struct {
	Task domain.Task `json:"task"`
}

// TasksFailedPayload lists the failed tasks delivered in one notification.
type TasksFailedPayload struct {
	Tasks []domain.Task `json:"tasks"`
}

// TaskCompletedPayload identifies a task reached in time.
type TaskCompletedPayload struct {
	TaskID  uuid.UUID `json:"task_id"`
	Deleted bool      `json:"deleted"`
}

// WagerForfeitedPayload is the ledger hook for a failed task.
type WagerForfeitedPayload struct {
	TaskID uuid.UUID       `json:"task_id"`
	Amount decimal.Decimal `json:"amount"`
}

// WagerRefundedPayload returns a forfeited wager to the ledger.
type WagerRefundedPayload struct {
	TaskID uuid.UUID       `json:"task_id"`
	Amount decimal.Decimal `json:"amount"`
}

// AlertRaisedPayload wraps an alert for the UI.
type AlertRaisedPayload struct {
	Alert domain.Alert `json:"alert"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}

// Emit builds an event from payload and publishes it on emitter.
func Emit(ctx context.Context, emitter EventEmitter, eventType string, payload interface{}) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	return emitter.EmitEvent(ctx, event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *Event) error { return nil }
