package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/store"
)

// taskLockKey is the advisory lock every unit of work takes, so units of work
// from separate processes sharing one database are serialized too.
const taskLockKey int64 = 0x70696e7461736b

// TaskRepository is a store.TaskRepository backed by PostgreSQL.
// Reads on the repository run against the pool; every write runs inside a
// unit of work.
type TaskRepository struct {
	*PostgresTaskStore

	sqlDB *sql.DB
	// work serializes units of work within this process.
	work sync.Mutex
}

// NewTaskRepository creates a repository over db.
// If logger is nil, a default logger will be used.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{
		PostgresTaskStore: NewPostgresTaskStore(db, logger),
		sqlDB:             db,
	}
}

// Ensure TaskRepository implements store.TaskRepository interface
var _ store.TaskRepository = (*TaskRepository)(nil)

// Do implements store.UnitOfWork.
func (r *TaskRepository) Do(ctx context.Context, fn store.TxFunc) error {
	r.work.Lock()
	defer r.work.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrSaveFailed, err)
	}

	return store.RunInTransaction(ctx, r.sqlDB, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, taskLockKey); err != nil {
			return fmt.Errorf("%w: failed to acquire task lock: %w", store.ErrSaveFailed, err)
		}
		return fn(ctx, r.WithTx(tx))
	})
}

// Create implements store.TaskStore.Create as a single-operation unit of work.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	return r.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		return tasks.Create(ctx, task)
	})
}

// Update implements store.TaskStore.Update as a single-operation unit of work.
func (r *TaskRepository) Update(ctx context.Context, task *domain.Task) error {
	return r.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		return tasks.Update(ctx, task)
	})
}

// Delete implements store.TaskStore.Delete as a single-operation unit of work.
func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		return tasks.Delete(ctx, id)
	})
}
