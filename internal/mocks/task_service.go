package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/lifecycle"
	"github.com/phrazzld/pintask/internal/store"
)

// MockTaskService mocks the task operations of the lifecycle engine.
type MockTaskService struct {
	CreateTaskFn   func(ctx context.Context, input lifecycle.CreateTaskInput, now time.Time) (domain.Task, error)
	GetTaskFn      func(ctx context.Context, id uuid.UUID) (domain.Task, error)
	ListTasksFn    func(ctx context.Context, query store.Query) ([]domain.Task, error)
	DismissFn      func(ctx context.Context, id uuid.UUID) error
	HonorPriceFn   func(ctx context.Context, id uuid.UUID) error
	FalseFailureFn func(ctx context.Context, id uuid.UUID) error

	// Default response values
	Task  domain.Task
	Tasks []domain.Task
	Err   error

	mu           sync.Mutex
	createInputs []lifecycle.CreateTaskInput
	queries      []store.Query
	resolved     []uuid.UUID
}

// CreateTask records input and returns CreateTaskFn's result or the defaults.
func (m *MockTaskService) CreateTask(
	ctx context.Context,
	input lifecycle.CreateTaskInput,
	now time.Time,
) (domain.Task, error) {
	m.mu.Lock()
	m.createInputs = append(m.createInputs, input)
	m.mu.Unlock()

	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(ctx, input, now)
	}
	return m.Task, m.Err
}

// GetTask returns GetTaskFn's result or the defaults.
func (m *MockTaskService) GetTask(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}
	return m.Task, m.Err
}

// ListTasks records query and returns ListTasksFn's result or the defaults.
func (m *MockTaskService) ListTasks(ctx context.Context, query store.Query) ([]domain.Task, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.ListTasksFn != nil {
		return m.ListTasksFn(ctx, query)
	}
	return m.Tasks, m.Err
}

// Dismiss records id and returns DismissFn's result or Err.
func (m *MockTaskService) Dismiss(ctx context.Context, id uuid.UUID) error {
	m.recordResolved(id)
	if m.DismissFn != nil {
		return m.DismissFn(ctx, id)
	}
	return m.Err
}

// HonorPrice records id and returns HonorPriceFn's result or Err.
func (m *MockTaskService) HonorPrice(ctx context.Context, id uuid.UUID) error {
	m.recordResolved(id)
	if m.HonorPriceFn != nil {
		return m.HonorPriceFn(ctx, id)
	}
	return m.Err
}

// FalseFailure records id and returns FalseFailureFn's result or Err.
func (m *MockTaskService) FalseFailure(ctx context.Context, id uuid.UUID) error {
	m.recordResolved(id)
	if m.FalseFailureFn != nil {
		return m.FalseFailureFn(ctx, id)
	}
	return m.Err
}

// CreateInputs returns the inputs passed to CreateTask.
func (m *MockTaskService) CreateInputs() []lifecycle.CreateTaskInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]lifecycle.CreateTaskInput(nil), m.createInputs...)
}

// Queries returns the queries passed to ListTasks.
func (m *MockTaskService) Queries() []store.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Query(nil), m.queries...)
}

// Resolved returns the IDs passed to Dismiss, HonorPrice and FalseFailure.
func (m *MockTaskService) Resolved() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.resolved...)
}

func (m *MockTaskService) recordResolved(id uuid.UUID) {
	m.mu.Lock()
	m.resolved = append(m.resolved, id)
	m.mu.Unlock()
}
