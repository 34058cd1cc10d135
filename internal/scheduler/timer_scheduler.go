package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRegistered is returned when an ID is registered twice.
var ErrAlreadyRegistered = errors.New("background handler already registered")

// TimerScheduler is an in-process BackgroundScheduler. Each request fires on a
// timer at its earliest-begin time, and each invocation gets an expiration
// window after which its expiration handler is called.
type TimerScheduler struct {
	expiration time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.Mutex
	handlers map[string]func(BackgroundTask)
	pending  map[string]*time.Timer
	stopped  bool
	running  sync.WaitGroup
}

// NewTimerScheduler creates a scheduler whose invocations expire after expiration.
func NewTimerScheduler(expiration time.Duration, logger *slog.Logger) *TimerScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{
		expiration: expiration,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "timer_scheduler")),
		handlers:   make(map[string]func(BackgroundTask)),
		pending:    make(map[string]*time.Timer),
	}
}

var _ BackgroundScheduler = (*TimerScheduler)(nil)

// Register implements BackgroundScheduler.
func (s *TimerScheduler) Register(id string, handler func(BackgroundTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	s.handlers[id] = handler
	return nil
}

// Submit implements BackgroundScheduler.
func (s *TimerScheduler) Submit(req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("%w: scheduler stopped", ErrSubmissionFailed)
	}
	if _, ok := s.handlers[req.ID]; !ok {
		return fmt.Errorf("%w: no handler registered for %q", ErrSubmissionFailed, req.ID)
	}

	if timer, ok := s.pending[req.ID]; ok {
		timer.Stop()
	}

	delay := req.EarliestBegin.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.pending[req.ID] = time.AfterFunc(delay, func() { s.launch(req.ID) })

	s.logger.Debug("background request submitted",
		slog.String("task_id", req.ID),
		slog.Duration("delay", delay))
	return nil
}

// Pending reports whether a request for id is waiting to fire.
func (s *TimerScheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Stop cancels pending requests and waits for running invocations to complete.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.running.Wait()
}

func (s *TimerScheduler) launch(id string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	handler := s.handlers[id]
	delete(s.pending, id)
	s.running.Add(1)
	s.mu.Unlock()

	task := newTimerTask(id, s.logger)
	expiry := time.AfterFunc(s.expiration, task.expire)

	go func() {
		defer s.running.Done()
		defer expiry.Stop()

		s.logger.Debug("background task started", slog.String("task_id", id))
		handler(task)
		<-task.done
	}()
}

// timerTask is the BackgroundTask handed out by TimerScheduler.
type timerTask struct {
	id     string
	logger *slog.Logger
	done   chan struct{}

	mu        sync.Mutex
	onExpire  func()
	completed bool
	success   bool
}

func newTimerTask(id string, logger *slog.Logger) *timerTask {
	return &timerTask{id: id, logger: logger, done: make(chan struct{})}
}

func (t *timerTask) ID() string { return t.id }

func (t *timerTask) SetExpirationHandler(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

func (t *timerTask) SetTaskCompleted(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		t.logger.Warn("background task completed twice", slog.String("task_id", t.id))
		return
	}
	t.completed = true
	t.success = success
	close(t.done)

	t.logger.Debug("background task completed",
		slog.String("task_id", t.id),
		slog.Bool("success", success))
}

func (t *timerTask) expire() {
	t.mu.Lock()
	if t.completed {
		t.mu.Unlock()
		return
	}
	fn := t.onExpire
	t.mu.Unlock()

	t.logger.Warn("background task expired", slog.String("task_id", t.id))
	if fn != nil {
		fn()
	}

	// An expired task that is still open is reported as failed.
	t.mu.Lock()
	open := !t.completed
	t.mu.Unlock()
	if open {
		t.SetTaskCompleted(false)
	}
}
