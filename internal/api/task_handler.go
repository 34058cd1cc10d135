package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/api/shared"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/lifecycle"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/store"
	"github.com/shopspring/decimal"
)

// TaskService is the part of the lifecycle engine the task endpoints use.
type TaskService interface {
	CreateTask(ctx context.Context, input lifecycle.CreateTaskInput, now time.Time) (domain.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (domain.Task, error)
	ListTasks(ctx context.Context, query store.Query) ([]domain.Task, error)
	Dismiss(ctx context.Context, id uuid.UUID) error
	HonorPrice(ctx context.Context, id uuid.UUID) error
	FalseFailure(ctx context.Context, id uuid.UUID) error
}

// Ensure the lifecycle engine satisfies TaskService
var _ TaskService = (*lifecycle.Engine)(nil)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	tasks     TaskService
	validator *validator.Validate
	now       func() time.Time
	logger    *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks TaskService, now func() time.Time, logger *slog.Logger) *TaskHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:     tasks,
		validator: newRequestValidator(),
		now:       now,
		logger:    logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks requests
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleRequestError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleRequestError(w, r, err)
		return
	}

	input := lifecycle.CreateTaskInput{
		Title:     req.Title,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Deadline:  *req.Deadline,
	}
	if req.ChallengeAmount != nil {
		input.ChallengeAmount = *req.ChallengeAmount
	} else {
		input.ChallengeAmount = decimal.Zero
	}

	task, err := h.tasks.CreateTask(r.Context(), input, h.now())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	log.Debug("task created via API", slog.String("task_id", task.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// ListTasks handles GET /api/tasks requests
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	query, err := parseTaskQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.tasks.ListTasks(r.Context(), query)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasksToResponse(tasks)})
}

// GetTask handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// DismissTask handles DELETE /api/tasks/{id} requests
func (h *TaskHandler) DismissTask(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "dismiss", h.tasks.Dismiss)
}

// HonorPrice handles POST /api/tasks/{id}/honor requests
func (h *TaskHandler) HonorPrice(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "honor price", h.tasks.HonorPrice)
}

// FalseFailure handles POST /api/tasks/{id}/false-failure requests
func (h *TaskHandler) FalseFailure(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "false failure", h.tasks.FalseFailure)
}

// resolve runs a task-removing operation and answers 204 on success.
func (h *TaskHandler) resolve(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	fn func(ctx context.Context, id uuid.UUID) error,
) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := fn(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to "+operation)
		return
	}

	log.Debug("task resolved via API",
		slog.String("operation", operation),
		slog.String("task_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return id, true
}
