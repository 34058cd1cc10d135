package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/store"
)

// mockEngine is an Engine with overridable behaviour.
type mockEngine struct {
	ReconcileFn   func(ctx context.Context, now time.Time) ([]domain.Task, error)
	AcknowledgeFn func(ctx context.Context, ids []uuid.UUID, now time.Time) (int, error)
	ListTasksFn   func(ctx context.Context, query store.Query) ([]domain.Task, error)

	mu    sync.Mutex
	calls int
}

func (m *mockEngine) Reconcile(ctx context.Context, now time.Time) ([]domain.Task, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ReconcileFn != nil {
		return m.ReconcileFn(ctx, now)
	}
	return nil, nil
}

func (m *mockEngine) Acknowledge(ctx context.Context, ids []uuid.UUID, now time.Time) (int, error) {
	if m.AcknowledgeFn != nil {
		return m.AcknowledgeFn(ctx, ids, now)
	}
	return len(ids), nil
}

func (m *mockEngine) ListTasks(ctx context.Context, query store.Query) ([]domain.Task, error) {
	if m.ListTasksFn != nil {
		return m.ListTasksFn(ctx, query)
	}
	return nil, nil
}

func (m *mockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockBackground is a BackgroundScheduler that records calls.
type mockBackground struct {
	SubmitFn func(req Request) error

	mu          sync.Mutex
	registered  map[string]func(BackgroundTask)
	submissions []Request
}

func (m *mockBackground) Register(id string, handler func(BackgroundTask)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered == nil {
		m.registered = make(map[string]func(BackgroundTask))
	}
	m.registered[id] = handler
	return nil
}

func (m *mockBackground) Submit(req Request) error {
	m.mu.Lock()
	m.submissions = append(m.submissions, req)
	m.mu.Unlock()
	if m.SubmitFn != nil {
		return m.SubmitFn(req)
	}
	return nil
}

func (m *mockBackground) Submissions() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.submissions...)
}

// mockTask is a BackgroundTask that records completions.
type mockTask struct {
	id string

	mu          sync.Mutex
	onExpire    func()
	completions []bool
}

func (m *mockTask) ID() string { return m.id }

func (m *mockTask) SetExpirationHandler(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

func (m *mockTask) SetTaskCompleted(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, success)
}

func (m *mockTask) expire() {
	m.mu.Lock()
	fn := m.onExpire
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *mockTask) Completions() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.completions...)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) HandleEvent(ctx context.Context, event *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) ofType(eventType string) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
