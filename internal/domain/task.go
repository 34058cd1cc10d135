package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/shopspring/decimal"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

const (
	// DefaultTaskTitle is shown for tasks created without a title.
	DefaultTaskTitle = "Untitled Task"

	// MinDeadlineLead is how far in the future a deadline must be at creation.
	MinDeadlineLead = 2 * time.Minute

	// RegionRadiusMeters is the geofence radius around every task.
	RegionRadiusMeters = 50.0

	// AmountPlaces is the number of decimal places a challenge amount may carry.
	AmountPlaces = 2
)

// MaxChallengeAmount is the largest amount the task store can hold.
var MaxChallengeAmount = decimal.RequireFromString("9999999999.99")

// IsTerminal reports whether no further transitions are allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusActive, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// NormalizeTaskStatus maps a persisted status string onto a TaskStatus.
// Empty and unknown values are treated as active, which is what records
// written before the status column existed must become.
func NormalizeTaskStatus(raw string) TaskStatus {
	s := TaskStatus(raw)
	if !s.Valid() {
		return TaskStatusActive
	}
	return s
}

// Task is a wager placed on reaching a location before a deadline.
type Task struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
	ChallengeAmount decimal.Decimal `json:"challenge_amount"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
	Status          TaskStatus      `json:"status"`
	NotifiedAt      *time.Time      `json:"notified_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewTask creates an active task with a fresh ID.
// The deadline must be at least MinDeadlineLead after now.
func NewTask(
	title string,
	location geo.Coordinate,
	amount decimal.Decimal,
	deadline time.Time,
	now time.Time,
) (*Task, error) {
	if deadline.Sub(now) < MinDeadlineLead {
		return nil, fmt.Errorf("%w: deadline %s must be at least %s after %s",
			ErrInvalidDeadline, deadline.UTC().Format(time.RFC3339), MinDeadlineLead,
			now.UTC().Format(time.RFC3339))
	}
	if title == "" {
		title = DefaultTaskTitle
	}

	d := deadline.UTC()
	task := &Task{
		ID:              uuid.New(),
		Title:           title,
		Latitude:        location.Latitude,
		Longitude:       location.Longitude,
		ChallengeAmount: amount,
		Deadline:        &d,
		Status:          TaskStatusActive,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task ID cannot be empty", ErrInvalidID)
	}
	if err := t.Coordinate().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if t.ChallengeAmount.IsNegative() {
		return ErrNegativeAmount
	}
	if !t.ChallengeAmount.Equal(t.ChallengeAmount.Round(AmountPlaces)) {
		return fmt.Errorf("%w: %s has more than %d decimal places",
			ErrInvalidAmount, t.ChallengeAmount, AmountPlaces)
	}
	if t.ChallengeAmount.GreaterThan(MaxChallengeAmount) {
		return fmt.Errorf("%w: %s exceeds %s",
			ErrInvalidAmount, t.ChallengeAmount, MaxChallengeAmount.StringFixed(AmountPlaces))
	}
	if !t.Status.Valid() {
		return ErrInvalidTaskStatus
	}
	return nil
}

// Coordinate returns the task location.
func (t *Task) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: t.Latitude, Longitude: t.Longitude}
}

// IsOverdue reports whether an active task's deadline is strictly before now.
// Tasks without a deadline are never overdue.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status == TaskStatusActive && t.Deadline != nil && t.Deadline.Before(now)
}

// Fail moves an active task to failed. It returns false without error when
// the task is already failed, and ErrInvalidTransition when it completed.
func (t *Task) Fail(now time.Time) (bool, error) {
	return t.transition(TaskStatusFailed, now)
}

// Complete moves an active task to completed. It returns false without error
// when the task is already completed, and ErrInvalidTransition when it failed.
func (t *Task) Complete(now time.Time) (bool, error) {
	return t.transition(TaskStatusCompleted, now)
}

func (t *Task) transition(to TaskStatus, now time.Time) (bool, error) {
	if t.Status == to {
		return false, nil
	}
	if t.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = now.UTC()
	return true, nil
}

// MarkNotified records the first time a failure was surfaced to the user.
// Later calls keep the original timestamp and return false.
func (t *Task) MarkNotified(now time.Time) bool {
	if t.NotifiedAt != nil {
		return false
	}
	n := now.UTC()
	t.NotifiedAt = &n
	t.UpdatedAt = n
	return true
}

// Clone returns a deep copy that shares no pointers with t.
func (t *Task) Clone() *Task {
	c := *t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.NotifiedAt != nil {
		n := *t.NotifiedAt
		c.NotifiedAt = &n
	}
	return &c
}
