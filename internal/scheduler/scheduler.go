package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/store"
	"golang.org/x/sync/semaphore"
)

// Trigger names recorded on each run.
const (
	TriggerHeartbeat  = "heartbeat"
	TriggerForeground = "foreground"
	TriggerManual     = "manual"
	TriggerStartup    = "startup"
)

// Engine is the reconciliation entry point.
type Engine interface {
	Reconcile(ctx context.Context, now time.Time) ([]domain.Task, error)
	Acknowledge(ctx context.Context, ids []uuid.UUID, now time.Time) (int, error)
	ListTasks(ctx context.Context, query store.Query) ([]domain.Task, error)
}

// RegionRefresher re-registers geofences from the store.
type RegionRefresher interface {
	Refresh(ctx context.Context) error
}

// State is the scheduler's run state.
type State string

// Run states
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Config holds the trigger timings.
type Config struct {
	HeartbeatInterval  time.Duration
	ProcessingInterval time.Duration
	RefreshInterval    time.Duration
	ExpirationWindow   time.Duration
}

// DefaultConfig returns the default trigger timings.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  60 * time.Second,
		ProcessingInterval: 15 * time.Minute,
		RefreshInterval:    5 * time.Minute,
		ExpirationWindow:   25 * time.Second,
	}
}

// RunResult describes one completed reconciliation.
type RunResult struct {
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Failed    []domain.Task `json:"failed"`
	Notified  int           `json:"notified"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler coordinates the reconciliation triggers.
type Scheduler struct {
	engine     Engine
	regions    RegionRefresher
	background BackgroundScheduler
	emitter    events.EventEmitter
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger

	// sem admits one reconciliation at a time.
	sem   *semaphore.Weighted
	state atomic.Value
	runs  atomic.Int64

	// hbMu guards the heartbeat fields.
	hbMu     sync.Mutex
	hbGen    uint64
	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

// New creates a scheduler. regions and background may be nil.
func New(
	engine Engine,
	regions RegionRefresher,
	background BackgroundScheduler,
	emitter events.EventEmitter,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) (*Scheduler, error) {
	if engine == nil {
		return nil, errors.New("scheduler: engine cannot be nil")
	}
	if cfg.HeartbeatInterval <= 0 || cfg.ExpirationWindow <= 0 {
		return nil, fmt.Errorf("scheduler: heartbeat interval and expiration window must be positive")
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		engine:     engine,
		regions:    regions,
		background: background,
		emitter:    emitter,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "scheduler")),
		sem:        semaphore.NewWeighted(1),
	}
	s.state.Store(StateIdle)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns whether a reconciliation is in progress.
func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

// Runs returns the number of reconciliations that have completed.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Start registers the background handlers and submits the first requests.
// Background invocations run with a context derived from ctx that survives its cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.background == nil {
		return nil
	}

	base := context.WithoutCancel(ctx)
	for _, id := range []string{ProcessingTaskID, RefreshTaskID} {
		if err := s.background.Register(id, func(task BackgroundTask) {
			s.HandleBackgroundTask(base, task)
		}); err != nil {
			return fmt.Errorf("register background task %s: %w", id, err)
		}
		s.submit(ctx, id)
	}
	return nil
}

// RunOnce performs one reconciliation. Concurrent callers are serialized.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (RunResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("trigger", trigger))

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return RunResult{}, fmt.Errorf("wait for reconciliation slot: %w", err)
	}
	defer s.sem.Release(1)

	s.state.Store(StateRunning)
	defer s.state.Store(StateIdle)

	result := RunResult{Trigger: trigger, StartedAt: s.now()}

	failed, err := s.engine.Reconcile(ctx, result.StartedAt)
	if err != nil {
		log.Error("reconciliation failed", slog.String("error", err.Error()))
		s.alert(ctx, err)
		return result, err
	}
	result.Failed = failed

	notified, err := s.deliver(ctx, result.StartedAt)
	result.Notified = notified
	if err != nil {
		log.Error("failed to record notification", slog.String("error", err.Error()))
		s.alert(ctx, err)
		return result, err
	}

	if s.regions != nil {
		if err := s.regions.Refresh(ctx); err != nil {
			log.Warn("failed to refresh regions", slog.String("error", err.Error()))
		}
	}

	s.runs.Add(1)
	log.Debug("reconciliation run complete",
		slog.Int("failed", len(failed)),
		slog.Int("notified", notified))
	return result, nil
}

// deliver publishes the failed tasks not surfaced yet and acknowledges them.
// A task whose acknowledgement does not commit is delivered again next run.
func (s *Scheduler) deliver(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.engine.ListTasks(ctx, store.ByStatus(domain.TaskStatusFailed).WithUnnotified())
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := events.Emit(ctx, s.emitter, events.TypeTasksFailed, events.TasksFailedPayload{Tasks: pending}); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to deliver failure notification",
			slog.Int("count", len(pending)),
			slog.String("error", err.Error()))
		return 0, nil
	}

	ids := make([]uuid.UUID, len(pending))
	for i, task := range pending {
		ids[i] = task.ID
	}
	if _, err := s.engine.Acknowledge(ctx, ids, now); err != nil {
		return len(pending), err
	}
	return len(pending), nil
}

// EnterForeground arms the heartbeat, if it is not already running, and runs
// one catch-up reconciliation.
func (s *Scheduler) EnterForeground(ctx context.Context) (RunResult, error) {
	s.armHeartbeat(ctx)
	return s.RunOnce(ctx, TriggerForeground)
}

// EnterBackground cancels the heartbeat and waits for its loop to exit.
func (s *Scheduler) EnterBackground() {
	s.hbMu.Lock()
	cancel, done := s.hbCancel, s.hbDone
	s.hbCancel, s.hbDone = nil, nil
	s.hbMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Debug("heartbeat stopped")
}

// HeartbeatActive reports whether the heartbeat loop is armed.
func (s *Scheduler) HeartbeatActive() bool {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()
	return s.hbCancel != nil
}

func (s *Scheduler) heartbeatGeneration() uint64 {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()
	return s.hbGen
}

func (s *Scheduler) armHeartbeat(ctx context.Context) {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()

	if s.hbCancel != nil {
		return
	}

	s.hbGen++
	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.hbCancel, s.hbDone = cancel, done

	go s.heartbeat(hbCtx, s.hbGen, done)
	s.logger.Debug("heartbeat armed",
		slog.Uint64("generation", s.hbGen),
		slog.Duration("interval", s.cfg.HeartbeatInterval))
}

func (s *Scheduler) heartbeat(ctx context.Context, generation uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.heartbeatGeneration() != generation {
				return
			}
			// Errors are logged and alerted by RunOnce; the next tick retries.
			_, _ = s.RunOnce(ctx, TriggerHeartbeat)
		}
	}
}

// Stop cancels the heartbeat.
func (s *Scheduler) Stop() {
	s.EnterBackground()
}

// HandleBackgroundTask services one background invocation: it resubmits the
// next request, reconciles within the expiration window, and reports the
// outcome to task exactly once.
func (s *Scheduler) HandleBackgroundTask(ctx context.Context, task BackgroundTask) {
	id := task.ID()
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", id))

	s.submit(ctx, id)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ExpirationWindow)
	defer cancel()

	var once sync.Once
	complete := func(success bool) {
		once.Do(func() { task.SetTaskCompleted(success) })
	}
	task.SetExpirationHandler(func() {
		log.Warn("background reconciliation expired")
		cancel()
		complete(false)
	})

	_, err := s.RunOnce(runCtx, "background:"+id)
	complete(err == nil)

	if err != nil {
		log.Warn("background reconciliation did not complete", slog.String("error", err.Error()))
	}
}

// submit requests the next invocation for id. Failures are logged only.
func (s *Scheduler) submit(ctx context.Context, id string) {
	if s.background == nil {
		return
	}

	interval := s.cfg.RefreshInterval
	if id == ProcessingTaskID {
		interval = s.cfg.ProcessingInterval
	}

	req := Request{ID: id, EarliestBegin: s.now().Add(interval)}
	if err := s.background.Submit(req); err != nil {
		if !errors.Is(err, ErrSubmissionFailed) {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to submit background request",
			slog.String("task_id", id),
			slog.String("error", err.Error()))
	}
}

func (s *Scheduler) alert(ctx context.Context, err error) {
	alert, ok := events.StoreAlert(err)
	if !ok {
		return
	}
	if emitErr := events.RaiseAlert(ctx, s.emitter, alert); emitErr != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to raise alert",
			slog.String("alert", alert.Kind),
			slog.String("error", emitErr.Error()))
	}
}
