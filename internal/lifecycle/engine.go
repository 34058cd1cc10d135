package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/store"
	"github.com/shopspring/decimal"
)

// CreateTaskInput is the user-supplied part of a new task.
type CreateTaskInput struct {
	Title           string          `json:"title"            validate:"max=200"`
	Latitude        float64         `json:"latitude"         validate:"gte=-90,lte=90"`
	Longitude       float64         `json:"longitude"        validate:"gte=-180,lte=180"`
	ChallengeAmount decimal.Decimal `json:"challenge_amount" validate:"gte=0"`
	Deadline        time.Time       `json:"deadline"         validate:"required"`
}

// Engine is the task lifecycle state machine.
type Engine struct {
	repo     store.TaskRepository
	emitter  events.EventEmitter
	validate *validator.Validate
	logger   *slog.Logger
}

// NewEngine creates a lifecycle engine over repo.
// A nil emitter discards events; a nil logger falls back to the default.
func NewEngine(repo store.TaskRepository, emitter events.EventEmitter, logger *slog.Logger) (*Engine, error) {
	if repo == nil {
		return nil, &EngineError{
			Operation: "create_engine",
			Message:   "repo cannot be nil",
		}
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		repo:     repo,
		emitter:  emitter,
		validate: newValidator(),
		logger:   logger.With(slog.String("component", "lifecycle_engine")),
	}, nil
}

// newValidator returns a validator that compares decimal amounts numerically.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// CreateTask validates input and stores a new active task.
// Deadlines less than domain.MinDeadlineLead after now are rejected with
// domain.ErrInvalidDeadline before the store is touched.
func (e *Engine) CreateTask(ctx context.Context, input CreateTaskInput, now time.Time) (domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, e.logger)

	if err := e.validate.Struct(input); err != nil {
		log.Debug("rejected task input", slog.String("error", err.Error()))
		return domain.Task{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	location := geo.Coordinate{Latitude: input.Latitude, Longitude: input.Longitude}
	task, err := domain.NewTask(input.Title, location, input.ChallengeAmount, input.Deadline, now)
	if err != nil {
		log.Debug("rejected task", slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrInvalidDeadline) {
			e.raise(ctx, domain.AlertInvalidDeadline)
		}
		return domain.Task{}, err
	}

	if err := e.repo.Create(ctx, task); err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		if alert, ok := events.StoreAlert(err); ok {
			e.raise(ctx, alert)
		}
		return domain.Task{}, NewEngineError("create_task", "failed to save task", err)
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("deadline", task.Deadline.Format(time.RFC3339)),
		slog.String("challenge_amount", task.ChallengeAmount.StringFixed(2)))
	e.emit(ctx, events.TypeTaskCreated, events.TaskCreatedPayload{Task: *task})
	return *task, nil
}

// Reconcile fails every active task whose deadline is strictly before now and
// returns the newly failed tasks together with all previously failed ones,
// deduplicated by ID and ordered by deadline.
//
// The transitions commit in one unit of work. If it cannot commit, nothing
// changes and the store error is returned; the next trigger retries.
// A wager.forfeited event is emitted once per task that failed in this call.
func (e *Engine) Reconcile(ctx context.Context, now time.Time) ([]domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, e.logger)

	var newlyFailed []*domain.Task
	err := e.repo.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		newlyFailed = newlyFailed[:0]

		overdue, err := tasks.Find(ctx, store.ByStatusDeadlineBefore(domain.TaskStatusActive, now))
		if err != nil {
			return err
		}

		for _, task := range overdue {
			changed, err := task.Fail(now)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			if err := tasks.Update(ctx, task); err != nil {
				return err
			}
			newlyFailed = append(newlyFailed, task)
		}
		return nil
	})
	if err != nil {
		log.Error("reconciliation rolled back", slog.String("error", err.Error()))
		return nil, NewEngineError("reconcile", "failed to fail overdue tasks", err)
	}

	for _, task := range newlyFailed {
		log.Info("task failed",
			slog.String("task_id", task.ID.String()),
			slog.String("deadline", task.Deadline.Format(time.RFC3339)))
		e.emit(ctx, events.TypeWagerForfeited, events.WagerForfeitedPayload{
			TaskID: task.ID,
			Amount: task.ChallengeAmount,
		})
	}

	failed, err := e.repo.Find(ctx, store.ByStatus(domain.TaskStatusFailed))
	if err != nil {
		log.Error("failed to load failed tasks", slog.String("error", err.Error()))
		return nil, NewEngineError("reconcile", "failed to load failed tasks", err)
	}

	result := unionByID(newlyFailed, failed)
	log.Debug("reconciliation complete",
		slog.Int("newly_failed", len(newlyFailed)),
		slog.Int("failed", len(result)))
	return result, nil
}

// Acknowledge records that the failures of ids were surfaced to the user.
// Tasks that are missing, not failed, or already acknowledged are skipped.
// It returns the number of tasks marked.
func (e *Engine) Acknowledge(ctx context.Context, ids []uuid.UUID, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var marked int
	err := e.repo.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		marked = 0
		for _, id := range ids {
			task, err := tasks.GetByID(ctx, id)
			if errors.Is(err, store.ErrTaskNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if task.Status != domain.TaskStatusFailed || !task.MarkNotified(now) {
				continue
			}
			if err := tasks.Update(ctx, task); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, NewEngineError("acknowledge", "failed to mark tasks notified", err)
	}
	return marked, nil
}

// HonorPrice resolves a failed task by accepting the forfeited wager.
// The task is removed.
func (e *Engine) HonorPrice(ctx context.Context, id uuid.UUID) error {
	task, err := e.removeFailed(ctx, "honor_price", id)
	if err != nil {
		return err
	}
	logger.FromContextOrDefault(ctx, e.logger).Info("failed task honored",
		slog.String("task_id", task.ID.String()),
		slog.String("challenge_amount", task.ChallengeAmount.StringFixed(2)))
	return nil
}

// FalseFailure resolves a failed task the user disputes. The task is removed
// and its wager refunded.
func (e *Engine) FalseFailure(ctx context.Context, id uuid.UUID) error {
	task, err := e.removeFailed(ctx, "false_failure", id)
	if err != nil {
		return err
	}
	logger.FromContextOrDefault(ctx, e.logger).Info("failed task disputed",
		slog.String("task_id", task.ID.String()))
	e.emit(ctx, events.TypeWagerRefunded, events.WagerRefundedPayload{
		TaskID: task.ID,
		Amount: task.ChallengeAmount,
	})
	return nil
}

func (e *Engine) removeFailed(ctx context.Context, operation string, id uuid.UUID) (*domain.Task, error) {
	var removed *domain.Task
	err := e.repo.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		task, err := tasks.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if task.Status != domain.TaskStatusFailed {
			return ErrTaskNotFailed
		}
		if err := tasks.Delete(ctx, id); err != nil {
			return err
		}
		removed = task
		return nil
	})
	if err != nil {
		return nil, NewEngineError(operation, "failed to resolve task", err)
	}
	return removed, nil
}

// Dismiss removes a task regardless of its status.
func (e *Engine) Dismiss(ctx context.Context, id uuid.UUID) error {
	if err := e.repo.Delete(ctx, id); err != nil {
		return NewEngineError("dismiss", "failed to delete task", err)
	}
	logger.FromContextOrDefault(ctx, e.logger).Info("task dismissed",
		slog.String("task_id", id.String()))
	return nil
}

// GetTask returns a copy of the task with the given ID.
func (e *Engine) GetTask(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	task, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Task{}, NewEngineError("get_task", "failed to load task", err)
	}
	return *task, nil
}

// ListTasks returns copies of the tasks matching query, ordered by deadline.
func (e *Engine) ListTasks(ctx context.Context, query store.Query) ([]domain.Task, error) {
	tasks, err := e.repo.Find(ctx, query)
	if err != nil {
		return nil, NewEngineError("list_tasks", "failed to query tasks", err)
	}
	return values(tasks), nil
}

// emit publishes an event; delivery failures are logged and never undo a commit.
func (e *Engine) emit(ctx context.Context, eventType string, payload interface{}) {
	if err := events.Emit(ctx, e.emitter, eventType, payload); err != nil {
		logger.FromContextOrDefault(ctx, e.logger).Warn("failed to emit event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
	}
}

// raise publishes a user-facing alert.
func (e *Engine) raise(ctx context.Context, alert domain.Alert) {
	e.emit(ctx, events.TypeAlertRaised, events.AlertRaisedPayload{Alert: alert})
}

func unionByID(newlyFailed, failed []*domain.Task) []domain.Task {
	seen := make(map[uuid.UUID]struct{}, len(failed))
	merged := make([]*domain.Task, 0, len(failed)+len(newlyFailed))
	for _, task := range failed {
		seen[task.ID] = struct{}{}
		merged = append(merged, task)
	}
	for _, task := range newlyFailed {
		if _, ok := seen[task.ID]; !ok {
			merged = append(merged, task)
		}
	}
	store.SortTasks(merged)
	return values(merged)
}

func values(tasks []*domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, task := range tasks {
		out[i] = *task.Clone()
	}
	return out
}
