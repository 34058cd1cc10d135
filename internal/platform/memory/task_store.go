package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/store"
)

// CommitHook runs just before a unit of work is applied. Returning an error
// aborts the commit; the store reports it wrapped in store.ErrSaveFailed.
type CommitHook func(ctx context.Context) error

// Option configures a TaskStore.
type Option func(*TaskStore)

// WithCommitHook installs a hook that can veto commits.
func WithCommitHook(hook CommitHook) Option {
	return func(s *TaskStore) {
		s.commitHook = hook
	}
}

// TaskStore is an in-memory store.TaskRepository.
type TaskStore struct {
	// work serializes units of work; it is held for the whole of Do.
	work sync.Mutex

	// mu guards tasks, the committed state.
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task

	commitHook CommitHook
	logger     *slog.Logger
}

// NewTaskStore creates an empty in-memory task store.
// If logger is nil, a default logger will be used.
func NewTaskStore(logger *slog.Logger, opts ...Option) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &TaskStore{
		tasks:  make(map[uuid.UUID]*domain.Task),
		logger: logger.With(slog.String("component", "memory_task_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure TaskStore implements store.TaskRepository
var _ store.TaskRepository = (*TaskStore)(nil)

// Do implements store.UnitOfWork.
// The TaskStore passed to fn is a private overlay; fn must not call back into
// the repository itself, or it will deadlock waiting for its own unit of work.
func (s *TaskStore) Do(ctx context.Context, fn store.TxFunc) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	s.work.Lock()
	defer s.work.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrSaveFailed, err)
	}

	tx := &txView{store: s, changes: make(map[uuid.UUID]*domain.Task)}
	if err := fn(ctx, tx); err != nil {
		log.Debug("discarded unit of work due to error",
			slog.String("error", err.Error()),
			slog.Int("staged_changes", len(tx.changes)))
		return err
	}

	if len(tx.changes) == 0 {
		return nil
	}

	if err := ctx.Err(); err != nil {
		log.Warn("discarded unit of work, context done before commit",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", store.ErrSaveFailed, err)
	}

	if s.commitHook != nil {
		if err := s.commitHook(ctx); err != nil {
			log.Error("commit rejected",
				slog.String("error", err.Error()))
			return fmt.Errorf("%w: %w", store.ErrSaveFailed, err)
		}
	}

	s.mu.Lock()
	for id, task := range tx.changes {
		if task == nil {
			delete(s.tasks, id)
			continue
		}
		s.tasks[id] = task
	}
	s.mu.Unlock()

	log.Debug("unit of work committed", slog.Int("changes", len(tx.changes)))
	return nil
}

// Create implements store.TaskStore.Create as a single-operation unit of work.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	return s.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		return tasks.Create(ctx, task)
	})
}

// Update implements store.TaskStore.Update as a single-operation unit of work.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	return s.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		return tasks.Update(ctx, task)
	})
}

// Delete implements store.TaskStore.Delete as a single-operation unit of work.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		return tasks.Delete(ctx, id)
	})
}

// GetByID implements store.TaskStore.GetByID against committed state.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Find implements store.TaskStore.Find against committed state.
func (s *TaskStore) Find(ctx context.Context, query store.Query) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrFetchFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Task, 0)
	for _, task := range s.tasks {
		if query.Matches(task) {
			result = append(result, task.Clone())
		}
	}
	store.SortTasks(result)
	return result, nil
}

// Len returns the number of committed tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// txView is the overlay a unit of work reads and writes through.
// A nil entry in changes marks a deletion.
type txView struct {
	store   *TaskStore
	changes map[uuid.UUID]*domain.Task
}

func (v *txView) lookup(id uuid.UUID) (*domain.Task, bool) {
	if task, staged := v.changes[id]; staged {
		return task, task != nil
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	task, ok := v.store.tasks[id]
	return task, ok
}

func (v *txView) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	if _, exists := v.lookup(task.ID); exists {
		return store.ErrTaskExists
	}
	v.changes[task.ID] = task.Clone()
	return nil
}

func (v *txView) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, ok := v.lookup(id)
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (v *txView) Find(ctx context.Context, query store.Query) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrFetchFailed, err)
	}

	v.store.mu.RLock()
	seen := make(map[uuid.UUID]struct{}, len(v.store.tasks))
	result := make([]*domain.Task, 0)
	for id, task := range v.store.tasks {
		seen[id] = struct{}{}
		if staged, ok := v.changes[id]; ok {
			task = staged
		}
		if task != nil && query.Matches(task) {
			result = append(result, task.Clone())
		}
	}
	v.store.mu.RUnlock()

	for id, task := range v.changes {
		if _, committed := seen[id]; committed || task == nil {
			continue
		}
		if query.Matches(task) {
			result = append(result, task.Clone())
		}
	}

	store.SortTasks(result)
	return result, nil
}

func (v *txView) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	if _, exists := v.lookup(task.ID); !exists {
		return store.ErrTaskNotFound
	}
	v.changes[task.ID] = task.Clone()
	return nil
}

func (v *txView) Delete(ctx context.Context, id uuid.UUID) error {
	if _, exists := v.lookup(id); !exists {
		return store.ErrTaskNotFound
	}
	v.changes[id] = nil
	return nil
}
