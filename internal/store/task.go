package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
)

// TaskStore defines the interface for task data persistence.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrTaskExists if a task with the same ID is already stored.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Find retrieves every task matching the query, ordered by deadline
	// (tasks without a deadline last) and then by ID.
	// Returns an empty slice if nothing matches.
	Find(ctx context.Context, query Query) ([]*domain.Task, error)

	// Update saves changes to an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// TxFunc is a unit of work executed against a transactional view of the store.
// Mutations made through tasks become visible to others only if the function
// returns nil and the commit succeeds.
type TxFunc func(ctx context.Context, tasks TaskStore) error

// UnitOfWork runs read-modify-write sequences atomically.
// Implementations serialize units of work per store instance, so two units
// never interleave their read and write phases. A unit of work that returns
// an error, panics, or whose context is done at commit time leaves the store
// unchanged; commit failures are reported as ErrSaveFailed.
type UnitOfWork interface {
	Do(ctx context.Context, fn TxFunc) error
}

// TaskRepository is a TaskStore that can also run units of work.
// Reads made directly on the repository observe only committed state.
type TaskRepository interface {
	TaskStore
	UnitOfWork
}
