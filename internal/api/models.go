package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/notify"
	"github.com/phrazzld/pintask/internal/proximity"
	"github.com/phrazzld/pintask/internal/scheduler"
	"github.com/shopspring/decimal"
)

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	Title           string           `json:"title"            validate:"max=200"`
	Latitude        *float64         `json:"latitude"         validate:"required,gte=-90,lte=90"`
	Longitude       *float64         `json:"longitude"        validate:"required,gte=-180,lte=180"`
	ChallengeAmount *decimal.Decimal `json:"challenge_amount"`
	Deadline        *time.Time       `json:"deadline"         validate:"required"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	ChallengeAmount string     `json:"challenge_amount"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	Status          string     `json:"status"`
	NotifiedAt      *time.Time `json:"notified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TaskListResponse wraps a list of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// LocationUpdateRequest defines the payload for a coordinate update.
// A zero timestamp means the time the request was received.
type LocationUpdateRequest struct {
	Latitude  *float64  `json:"latitude"  validate:"required,gte=-90,lte=90"`
	Longitude *float64  `json:"longitude" validate:"required,gte=-180,lte=180"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationUpdateResponse lists the tasks completed by an update.
type LocationUpdateResponse struct {
	Completed []TaskResponse `json:"completed"`
}

// AuthorizationRequest defines the payload for an authorization change.
type AuthorizationRequest struct {
	Status string `json:"status" validate:"required"`
}

// AuthorizationResponse reports the tracker state after an authorization change.
type AuthorizationResponse struct {
	Status   string `json:"status"`
	Updating bool   `json:"updating"`
	Cause    string `json:"cause,omitempty"`
}

// RegionEnteredResponse reports whether a region entry completed its task.
type RegionEnteredResponse struct {
	RegionID  uuid.UUID `json:"region_id"`
	Completed bool      `json:"completed"`
}

// RegionListResponse lists the watched regions.
type RegionListResponse struct {
	Regions []proximity.Region `json:"regions"`
}

// RunResponse is the wire form of a reconciliation run.
type RunResponse struct {
	Trigger   string         `json:"trigger"`
	StartedAt time.Time      `json:"started_at"`
	Failed    []TaskResponse `json:"failed"`
	Notified  int            `json:"notified"`
}

// AppStateResponse reports the scheduler state after a lifecycle change.
type AppStateResponse struct {
	State           string       `json:"state"`
	HeartbeatActive bool         `json:"heartbeat_active"`
	Run             *RunResponse `json:"run,omitempty"`
}

// NotificationListResponse wraps drained notifications.
type NotificationListResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// AlertListResponse wraps drained alerts.
type AlertListResponse struct {
	Alerts []domain.Alert `json:"alerts"`
}

func taskToResponse(task domain.Task) TaskResponse {
	return TaskResponse{
		ID:              task.ID,
		Title:           task.Title,
		Latitude:        task.Latitude,
		Longitude:       task.Longitude,
		ChallengeAmount: task.ChallengeAmount.StringFixed(2),
		Deadline:        task.Deadline,
		Status:          string(task.Status),
		NotifiedAt:      task.NotifiedAt,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
	}
}

func tasksToResponse(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		out[i] = taskToResponse(task)
	}
	return out
}

func runToResponse(run scheduler.RunResult) *RunResponse {
	return &RunResponse{
		Trigger:   run.Trigger,
		StartedAt: run.StartedAt,
		Failed:    tasksToResponse(run.Failed),
		Notified:  run.Notified,
	}
}
