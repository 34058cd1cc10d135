package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/platform/memory"
	"github.com/phrazzld/pintask/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	providence = geo.Coordinate{Latitude: 41.826084, Longitude: -71.403246}
	baseTime   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

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

func newTestEngine(t *testing.T, opts ...memory.Option) (*Engine, *memory.TaskStore, *recorder) {
	t.Helper()
	repo := memory.NewTaskStore(testLogger, opts...)
	rec := &recorder{}
	emitter := events.NewInMemoryEventEmitter(testLogger)
	emitter.RegisterHandler(rec)

	engine, err := NewEngine(repo, emitter, testLogger)
	require.NoError(t, err)
	return engine, repo, rec
}

// seedTask stores an active task whose deadline is offset from baseTime.
func seedTask(t *testing.T, repo store.TaskStore, offset time.Duration) *domain.Task {
	t.Helper()
	deadline := baseTime.Add(offset)
	task, err := domain.NewTask("Seed", providence, decimal.RequireFromString("5.00"),
		deadline, deadline.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), task))
	return task
}

func ids(tasks []domain.Task) []uuid.UUID {
	out := make([]uuid.UUID, len(tasks))
	for i, task := range tasks {
		out[i] = task.ID
	}
	return out
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(nil, nil, nil)
	var engineErr *EngineError
	assert.ErrorAs(t, err, &engineErr)

	engine, err := NewEngine(memory.NewTaskStore(nil), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, engine.emitter)
}

func TestEngine_CreateTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   CreateTaskInput
		wantErr error
	}{
		{
			name: "valid",
			input: CreateTaskInput{
				Title:           "Gym",
				Latitude:        providence.Latitude,
				Longitude:       providence.Longitude,
				ChallengeAmount: decimal.RequireFromString("5.00"),
				Deadline:        baseTime.Add(10 * time.Minute),
			},
		},
		{
			name: "exactly two minutes ahead",
			input: CreateTaskInput{
				Latitude:  providence.Latitude,
				Longitude: providence.Longitude,
				Deadline:  baseTime.Add(domain.MinDeadlineLead),
			},
		},
		{
			name: "deadline thirty seconds ahead",
			input: CreateTaskInput{
				Latitude:        providence.Latitude,
				Longitude:       providence.Longitude,
				ChallengeAmount: decimal.RequireFromString("5.00"),
				Deadline:        baseTime.Add(30 * time.Second),
			},
			wantErr: domain.ErrInvalidDeadline,
		},
		{
			name: "deadline in the past",
			input: CreateTaskInput{
				Deadline: baseTime.Add(-time.Minute),
			},
			wantErr: domain.ErrInvalidDeadline,
		},
		{
			name: "negative amount",
			input: CreateTaskInput{
				ChallengeAmount: decimal.RequireFromString("-1"),
				Deadline:        baseTime.Add(time.Hour),
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "sub-cent amount",
			input: CreateTaskInput{
				ChallengeAmount: decimal.RequireFromString("5.005"),
				Deadline:        baseTime.Add(time.Hour),
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "latitude out of range",
			input: CreateTaskInput{
				Latitude: 90.5,
				Deadline: baseTime.Add(time.Hour),
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "missing deadline",
			input:   CreateTaskInput{},
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine, repo, _ := newTestEngine(t)

			task, err := engine.CreateTask(context.Background(), tt.input, baseTime)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, repo.Len(), "rejected tasks must not reach the store")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.TaskStatusActive, task.Status)
			stored, err := repo.GetByID(context.Background(), task.ID)
			require.NoError(t, err)
			assert.Equal(t, task.ID, stored.ID)
			if tt.input.Title == "" {
				assert.Equal(t, domain.DefaultTaskTitle, stored.Title)
			}
		})
	}
}

func TestEngine_ReconcileFailsOverdueTasks(t *testing.T) {
	t.Parallel()
	engine, repo, rec := newTestEngine(t)
	ctx := context.Background()

	overdue := seedTask(t, repo, -time.Minute)
	future := seedTask(t, repo, time.Hour)
	exactlyNow := seedTask(t, repo, 0)

	failed, err := engine.Reconcile(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{overdue.ID}, ids(failed))
	assert.Equal(t, domain.TaskStatusFailed, failed[0].Status)

	for _, id := range []uuid.UUID{future.ID, exactlyNow.ID} {
		task, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusActive, task.Status, "deadline >= now must not fail")
	}

	forfeited := rec.ofType(events.TypeWagerForfeited)
	require.Len(t, forfeited, 1)
	var payload events.WagerForfeitedPayload
	require.NoError(t, forfeited[0].UnmarshalPayload(&payload))
	assert.Equal(t, overdue.ID, payload.TaskID)
	assert.True(t, payload.Amount.Equal(decimal.RequireFromString("5")))
}

func TestEngine_ReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	engine, repo, rec := newTestEngine(t)
	ctx := context.Background()

	seedTask(t, repo, -2*time.Minute)
	seedTask(t, repo, -time.Minute)

	first, err := engine.Reconcile(ctx, baseTime)
	require.NoError(t, err)
	snapshot, err := repo.Find(ctx, store.AllTasks())
	require.NoError(t, err)

	second, err := engine.Reconcile(ctx, baseTime)
	require.NoError(t, err)
	after, err := repo.Find(ctx, store.AllTasks())
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, snapshot, after)
	assert.Len(t, rec.ofType(events.TypeWagerForfeited), 2)
}

func TestEngine_ReconcileIgnoresTasksWithoutDeadline(t *testing.T) {
	t.Parallel()
	engine, repo, _ := newTestEngine(t)
	ctx := context.Background()

	task := &domain.Task{
		ID:        uuid.New(),
		Title:     "Legacy",
		Latitude:  providence.Latitude,
		Longitude: providence.Longitude,
		Status:    domain.TaskStatusActive,
	}
	require.NoError(t, repo.Create(ctx, task))

	failed, err := engine.Reconcile(ctx, baseTime.Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestEngine_DeadlineScenario(t *testing.T) {
	t.Parallel()
	engine, repo, rec := newTestEngine(t)
	ctx := context.Background()

	task, err := engine.CreateTask(ctx, CreateTaskInput{
		Title:           "Library",
		Latitude:        providence.Latitude,
		Longitude:       providence.Longitude,
		ChallengeAmount: decimal.RequireFromString("5.00"),
		Deadline:        baseTime.Add(150 * time.Second),
	}, baseTime)
	require.NoError(t, err)

	later := baseTime.Add(151 * time.Second)
	failed, err := engine.Reconcile(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{task.ID}, ids(failed))

	marked, err := engine.Acknowledge(ctx, ids(failed), later)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	again, err := engine.Reconcile(ctx, later.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{task.ID}, ids(again), "failed tasks stay listed until resolved")
	assert.NotNil(t, again[0].NotifiedAt, "already surfaced")
	assert.Len(t, rec.ofType(events.TypeWagerForfeited), 1)

	marked, err = engine.Acknowledge(ctx, ids(again), later.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, marked)

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, stored.NotifiedAt.Equal(later), "first acknowledgement wins")
}

func TestEngine_ConcurrentReconcile(t *testing.T) {
	t.Parallel()

	// Reference end state from a single run.
	solo, soloRepo, _ := newTestEngine(t)
	concurrent, repo, rec := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		offset := time.Duration(i-10) * time.Minute
		task := seedTask(t, repo, offset)
		require.NoError(t, soloRepo.Create(ctx, task.Clone()))
	}

	_, err := solo.Reconcile(ctx, baseTime)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := concurrent.Reconcile(ctx, baseTime)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	want, err := soloRepo.Find(ctx, store.AllTasks())
	require.NoError(t, err)
	got, err := repo.Find(ctx, store.AllTasks())
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Status, got[i].Status)
	}

	assert.Len(t, rec.ofType(events.TypeWagerForfeited), 10, "each task fails exactly once")
}

func TestEngine_ReconcileRollsBackOnSaveFailure(t *testing.T) {
	t.Parallel()

	var failCommit bool
	engine, repo, rec := newTestEngine(t, memory.WithCommitHook(func(ctx context.Context) error {
		if failCommit {
			return errors.New("disk full")
		}
		return nil
	}))
	ctx := context.Background()

	task := seedTask(t, repo, -time.Minute)
	failCommit = true

	failed, err := engine.Reconcile(ctx, baseTime)
	assert.ErrorIs(t, err, store.ErrSaveFailed)
	assert.Nil(t, failed)
	assert.Empty(t, rec.ofType(events.TypeWagerForfeited))

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusActive, stored.Status)

	failCommit = false
	failed, err = engine.Reconcile(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{task.ID}, ids(failed), "retry on next trigger succeeds")
}

func TestEngine_ReconcileCanceledBeforeCommit(t *testing.T) {
	t.Parallel()
	engine, repo, _ := newTestEngine(t)

	task := seedTask(t, repo, -time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Reconcile(ctx, baseTime)
	assert.ErrorIs(t, err, store.ErrSaveFailed)

	stored, err := repo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusActive, stored.Status)
}

func TestEngine_ReconcileReturnsCopies(t *testing.T) {
	t.Parallel()
	engine, repo, _ := newTestEngine(t)
	ctx := context.Background()

	task := seedTask(t, repo, -time.Minute)

	failed, err := engine.Reconcile(ctx, baseTime)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	failed[0].Title = "mutated"
	*failed[0].Deadline = baseTime.Add(time.Hour)

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Seed", stored.Title)
	assert.True(t, stored.Deadline.Equal(baseTime.Add(-time.Minute)))
}

func TestEngine_ResolutionFlows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("honor price removes a failed task", func(t *testing.T) {
		engine, repo, rec := newTestEngine(t)
		task := seedTask(t, repo, -time.Minute)
		_, err := engine.Reconcile(ctx, baseTime)
		require.NoError(t, err)

		require.NoError(t, engine.HonorPrice(ctx, task.ID))
		_, err = repo.GetByID(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.Empty(t, rec.ofType(events.TypeWagerRefunded))
	})

	t.Run("false failure removes and refunds", func(t *testing.T) {
		engine, repo, rec := newTestEngine(t)
		task := seedTask(t, repo, -time.Minute)
		_, err := engine.Reconcile(ctx, baseTime)
		require.NoError(t, err)

		require.NoError(t, engine.FalseFailure(ctx, task.ID))
		assert.Zero(t, repo.Len())

		refunds := rec.ofType(events.TypeWagerRefunded)
		require.Len(t, refunds, 1)
		var payload events.WagerRefundedPayload
		require.NoError(t, refunds[0].UnmarshalPayload(&payload))
		assert.Equal(t, task.ID, payload.TaskID)
	})

	t.Run("active tasks cannot be resolved", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t)
		task := seedTask(t, repo, time.Hour)

		assert.ErrorIs(t, engine.HonorPrice(ctx, task.ID), ErrTaskNotFailed)
		assert.ErrorIs(t, engine.FalseFailure(ctx, task.ID), ErrTaskNotFailed)
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("missing task", func(t *testing.T) {
		engine, _, _ := newTestEngine(t)
		assert.ErrorIs(t, engine.HonorPrice(ctx, uuid.New()), store.ErrTaskNotFound)
		assert.ErrorIs(t, engine.Dismiss(ctx, uuid.New()), store.ErrTaskNotFound)
	})

	t.Run("dismiss removes any task", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t)
		task := seedTask(t, repo, time.Hour)

		require.NoError(t, engine.Dismiss(ctx, task.ID))
		_, err := engine.GetTask(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestEngine_AcknowledgeSkipsNonFailed(t *testing.T) {
	t.Parallel()
	engine, repo, _ := newTestEngine(t)
	ctx := context.Background()

	active := seedTask(t, repo, time.Hour)

	marked, err := engine.Acknowledge(ctx, []uuid.UUID{active.ID, uuid.New()}, baseTime)
	require.NoError(t, err)
	assert.Zero(t, marked)

	stored, err := repo.GetByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NotifiedAt)
}

func TestEngine_ListTasks(t *testing.T) {
	t.Parallel()
	engine, repo, _ := newTestEngine(t)
	ctx := context.Background()

	near := seedTask(t, repo, time.Hour)
	far := &domain.Task{
		ID:        uuid.New(),
		Title:     "Far",
		Latitude:  10,
		Longitude: 10,
		Status:    domain.TaskStatusActive,
	}
	require.NoError(t, repo.Create(ctx, far))

	sw, ne := geo.BoundingBox(providence, 1000)
	tasks, err := engine.ListTasks(ctx, store.InBoundingBox(sw, ne))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{near.ID}, ids(tasks))
}

func TestEngine_CreateTaskRaisesAlerts(t *testing.T) {
	t.Parallel()

	t.Run("invalid deadline", func(t *testing.T) {
		t.Parallel()
		engine, _, rec := newTestEngine(t)

		_, err := engine.CreateTask(context.Background(), CreateTaskInput{
			Deadline: baseTime.Add(30 * time.Second),
		}, baseTime)
		require.ErrorIs(t, err, domain.ErrInvalidDeadline)

		raised := rec.ofType(events.TypeAlertRaised)
		require.Len(t, raised, 1)
		var payload events.AlertRaisedPayload
		require.NoError(t, raised[0].UnmarshalPayload(&payload))
		assert.Equal(t, domain.AlertInvalidDeadline, payload.Alert)
	})

	t.Run("save failure", func(t *testing.T) {
		t.Parallel()
		engine, repo, rec := newTestEngine(t, memory.WithCommitHook(func(ctx context.Context) error {
			return errors.New("disk full")
		}))

		_, err := engine.CreateTask(context.Background(), CreateTaskInput{
			Deadline: baseTime.Add(time.Hour),
		}, baseTime)
		require.ErrorIs(t, err, store.ErrSaveFailed)
		assert.Zero(t, repo.Len())

		raised := rec.ofType(events.TypeAlertRaised)
		require.Len(t, raised, 1)
		var payload events.AlertRaisedPayload
		require.NoError(t, raised[0].UnmarshalPayload(&payload))
		assert.Equal(t, domain.AlertStoreSave, payload.Alert)
	})
}
