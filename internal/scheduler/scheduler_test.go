package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/lifecycle"
	"github.com/phrazzld/pintask/internal/platform/memory"
	"github.com/phrazzld/pintask/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	baseTime   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return baseTime }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 5 * time.Millisecond
	cfg.ExpirationWindow = 50 * time.Millisecond
	return cfg
}

func newTestScheduler(t *testing.T, engine Engine, background BackgroundScheduler, cfg Config) (*Scheduler, *recorder) {
	t.Helper()
	rec := &recorder{}
	emitter := events.NewInMemoryEventEmitter(testLogger)
	emitter.RegisterHandler(rec)

	s, err := New(engine, nil, background, emitter, cfg, testLogger, WithClock(fixedClock))
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, rec
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, nil, DefaultConfig(), nil)
	assert.Error(t, err)

	_, err = New(&mockEngine{}, nil, nil, nil, Config{}, nil)
	assert.Error(t, err)

	s, err := New(&mockEngine{}, nil, nil, nil, DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
}

func TestRunOnce_DeliversEachFailureOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := memory.NewTaskStore(testLogger)
	engine, err := lifecycle.NewEngine(repo, nil, testLogger)
	require.NoError(t, err)

	deadline := baseTime.Add(-time.Minute)
	task, err := domain.NewTask("Gym", geo.Coordinate{Latitude: 41.8, Longitude: -71.4},
		decimal.RequireFromString("5.00"), deadline, deadline.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, task))

	s, rec := newTestScheduler(t, engine, nil, testConfig())

	first, err := s.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Notified)
	require.Len(t, first.Failed, 1)

	second, err := s.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, second.Notified)
	assert.Len(t, second.Failed, 1, "failed tasks stay in the result until resolved")

	notifications := rec.ofType(events.TypeTasksFailed)
	require.Len(t, notifications, 1)
	var payload events.TasksFailedPayload
	require.NoError(t, notifications[0].UnmarshalPayload(&payload))
	require.Len(t, payload.Tasks, 1)
	assert.Equal(t, task.ID, payload.Tasks[0].ID)

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NotifiedAt)
	assert.True(t, stored.NotifiedAt.Equal(baseTime))
	assert.Equal(t, int64(2), s.Runs())
}

func TestRunOnce_SerializesConcurrentTriggers(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight atomic.Int32
	engine := &mockEngine{ReconcileFn: func(ctx context.Context, now time.Time) ([]domain.Task, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}}
	s, _ := newTestScheduler(t, engine, nil, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RunOnce(context.Background(), TriggerManual)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load(), "runs never overlap")
	assert.Equal(t, 10, engine.Calls(), "no trigger is dropped")
	assert.Equal(t, StateIdle, s.State())
}

func TestRunOnce_StoreErrorRaisesAlert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want domain.Alert
	}{
		{"save", fmt.Errorf("%w: disk full", store.ErrSaveFailed), domain.AlertStoreSave},
		{"fetch", fmt.Errorf("%w: timeout", store.ErrFetchFailed), domain.AlertStoreFetch},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := &mockEngine{ReconcileFn: func(ctx context.Context, now time.Time) ([]domain.Task, error) {
				return nil, tt.err
			}}
			s, rec := newTestScheduler(t, engine, nil, testConfig())

			_, err := s.RunOnce(context.Background(), TriggerManual)
			assert.ErrorIs(t, err, tt.err)

			alerts := rec.ofType(events.TypeAlertRaised)
			require.Len(t, alerts, 1)
			var payload events.AlertRaisedPayload
			require.NoError(t, alerts[0].UnmarshalPayload(&payload))
			assert.Equal(t, tt.want, payload.Alert)
			assert.Equal(t, StateIdle, s.State())
		})
	}
}

func TestRunOnce_CancelledRunIsNotAlerted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	engine := &mockEngine{ReconcileFn: func(ctx context.Context, now time.Time) ([]domain.Task, error) {
		cancel()
		return nil, fmt.Errorf("%w: %w", store.ErrSaveFailed, ctx.Err())
	}}
	s, rec := newTestScheduler(t, engine, nil, testConfig())

	_, err := s.RunOnce(ctx, TriggerHeartbeat)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.ofType(events.TypeAlertRaised))
	assert.Equal(t, StateIdle, s.State())
}

func TestRunOnce_CancelledStoreRunIsNotAlerted(t *testing.T) {
	t.Parallel()

	repo := memory.NewTaskStore(testLogger)
	task, err := domain.NewTask("Gym", geo.Coordinate{Latitude: 1, Longitude: 2},
		decimal.Zero, baseTime.Add(-time.Hour), baseTime.Add(-2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), task))

	engine, err := lifecycle.NewEngine(repo, nil, testLogger)
	require.NoError(t, err)
	s, rec := newTestScheduler(t, engine, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.RunOnce(ctx, TriggerManual)
	require.Error(t, err)
	assert.Empty(t, rec.ofType(events.TypeAlertRaised))

	stored, err := repo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusActive, stored.Status)
}

func TestRunOnce_AcknowledgeFailureRedelivers(t *testing.T) {
	t.Parallel()

	failed := []domain.Task{{ID: uuid.New(), Status: domain.TaskStatusFailed}}
	engine := &mockEngine{
		ReconcileFn: func(ctx context.Context, now time.Time) ([]domain.Task, error) {
			return failed, nil
		},
		ListTasksFn: func(ctx context.Context, query store.Query) ([]domain.Task, error) {
			assert.True(t, query.Unnotified)
			assert.Equal(t, []domain.TaskStatus{domain.TaskStatusFailed}, query.Statuses)
			return failed, nil
		},
		AcknowledgeFn: func(ctx context.Context, ids []uuid.UUID, now time.Time) (int, error) {
			return 0, fmt.Errorf("%w: locked", store.ErrSaveFailed)
		},
	}
	s, rec := newTestScheduler(t, engine, nil, testConfig())

	_, err := s.RunOnce(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, store.ErrSaveFailed)
	_, _ = s.RunOnce(context.Background(), TriggerManual)

	assert.Len(t, rec.ofType(events.TypeTasksFailed), 2)
}

func TestHeartbeat_NoDuplicateLoops(t *testing.T) {
	t.Parallel()
	engine := &mockEngine{}
	s, _ := newTestScheduler(t, engine, nil, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.EnterForeground(ctx)
		require.NoError(t, err)
	}
	assert.True(t, s.HeartbeatActive())
	assert.Equal(t, uint64(1), s.heartbeatGeneration(), "re-entering the foreground does not re-arm")

	assert.Eventually(t, func() bool { return engine.Calls() >= 6 }, time.Second, time.Millisecond)

	s.EnterBackground()
	assert.False(t, s.HeartbeatActive())
	stopped := engine.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, engine.Calls(), "no ticks after leaving the foreground")

	s.EnterBackground()

	_, err := s.EnterForeground(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.heartbeatGeneration())
	assert.Eventually(t, func() bool { return engine.Calls() > stopped+1 }, time.Second, time.Millisecond)
	s.EnterBackground()
}

func TestEnterForeground_CatchesUpImmediately(t *testing.T) {
	t.Parallel()
	engine := &mockEngine{}
	cfg := testConfig()
	cfg.HeartbeatInterval = time.Hour
	s, _ := newTestScheduler(t, engine, nil, cfg)

	result, err := s.EnterForeground(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerForeground, result.Trigger)
	assert.Equal(t, 1, engine.Calls())
}

func TestStart_RegistersAndSubmits(t *testing.T) {
	t.Parallel()
	background := &mockBackground{}
	s, _ := newTestScheduler(t, &mockEngine{}, background, testConfig())

	require.NoError(t, s.Start(context.Background()))

	assert.Contains(t, background.registered, ProcessingTaskID)
	assert.Contains(t, background.registered, RefreshTaskID)
	assert.Equal(t, []Request{
		{ID: ProcessingTaskID, EarliestBegin: baseTime.Add(15 * time.Minute)},
		{ID: RefreshTaskID, EarliestBegin: baseTime.Add(5 * time.Minute)},
	}, background.Submissions())
}

func TestHandleBackgroundTask_Success(t *testing.T) {
	t.Parallel()
	background := &mockBackground{}
	engine := &mockEngine{}
	s, _ := newTestScheduler(t, engine, background, testConfig())

	task := &mockTask{id: ProcessingTaskID}
	s.HandleBackgroundTask(context.Background(), task)

	assert.Equal(t, []bool{true}, task.Completions())
	assert.Equal(t, 1, engine.Calls())
	assert.Equal(t, []Request{{ID: ProcessingTaskID, EarliestBegin: baseTime.Add(15 * time.Minute)}},
		background.Submissions(), "the next request is submitted before running")
}

func TestHandleBackgroundTask_WindowElapses(t *testing.T) {
	t.Parallel()
	engine := &mockEngine{ReconcileFn: func(ctx context.Context, now time.Time) ([]domain.Task, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", store.ErrSaveFailed, ctx.Err())
	}}
	s, _ := newTestScheduler(t, engine, &mockBackground{}, testConfig())

	task := &mockTask{id: RefreshTaskID}
	s.HandleBackgroundTask(context.Background(), task)

	assert.Equal(t, []bool{false}, task.Completions())
}

func TestHandleBackgroundTask_ExpirationHandler(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	engine := &mockEngine{ReconcileFn: func(ctx context.Context, now time.Time) ([]domain.Task, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testConfig()
	cfg.ExpirationWindow = time.Hour
	s, _ := newTestScheduler(t, engine, &mockBackground{}, cfg)

	task := &mockTask{id: ProcessingTaskID}
	go func() {
		<-started
		task.expire()
	}()
	s.HandleBackgroundTask(context.Background(), task)

	assert.Equal(t, []bool{false}, task.Completions(), "completion is reported exactly once")
}

func TestHandleBackgroundTask_SubmissionFailureIsNotAlerted(t *testing.T) {
	t.Parallel()
	background := &mockBackground{SubmitFn: func(req Request) error {
		return errors.New("too many pending requests")
	}}
	s, rec := newTestScheduler(t, &mockEngine{}, background, testConfig())

	task := &mockTask{id: ProcessingTaskID}
	s.HandleBackgroundTask(context.Background(), task)

	assert.Equal(t, []bool{true}, task.Completions())
	assert.Empty(t, rec.ofType(events.TypeAlertRaised))
}

type refresherFunc func(ctx context.Context) error

func (f refresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

func TestRunOnce_RefreshesRegions(t *testing.T) {
	t.Parallel()
	var refreshed atomic.Int32
	s, err := New(&mockEngine{}, refresherFunc(func(ctx context.Context) error {
		refreshed.Add(1)
		return nil
	}), nil, nil, testConfig(), testLogger)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, int32(1), refreshed.Load())
}
