package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/notify"
	"github.com/phrazzld/pintask/internal/scheduler"
)

// MockLifecycle mocks the reconciliation scheduler's app-facing methods.
type MockLifecycle struct {
	RunOnceFn func(ctx context.Context, trigger string) (scheduler.RunResult, error)

	mu        sync.Mutex
	heartbeat bool
	triggers  []string
}

// EnterForeground arms the fake heartbeat and runs a foreground reconciliation.
func (m *MockLifecycle) EnterForeground(ctx context.Context) (scheduler.RunResult, error) {
	m.mu.Lock()
	m.heartbeat = true
	m.mu.Unlock()
	return m.RunOnce(ctx, scheduler.TriggerForeground)
}

// EnterBackground disarms the fake heartbeat.
func (m *MockLifecycle) EnterBackground() {
	m.mu.Lock()
	m.heartbeat = false
	m.mu.Unlock()
}

// RunOnce records trigger and returns RunOnceFn's result, or an empty run.
func (m *MockLifecycle) RunOnce(ctx context.Context, trigger string) (scheduler.RunResult, error) {
	m.mu.Lock()
	m.triggers = append(m.triggers, trigger)
	m.mu.Unlock()

	if m.RunOnceFn != nil {
		return m.RunOnceFn(ctx, trigger)
	}
	return scheduler.RunResult{Trigger: trigger}, nil
}

// State always reports idle.
func (m *MockLifecycle) State() scheduler.State {
	return scheduler.StateIdle
}

// HeartbeatActive reports whether EnterForeground was called more recently
// than EnterBackground.
func (m *MockLifecycle) HeartbeatActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeat
}

// Triggers returns the triggers passed to RunOnce.
func (m *MockLifecycle) Triggers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.triggers...)
}

// MockInbox returns fixed queues once, then empty ones.
type MockInbox struct {
	Notifications []notify.Notification
	Alerts        []domain.Alert
}

// DrainNotifications returns and clears Notifications.
func (m *MockInbox) DrainNotifications() []notify.Notification {
	out := m.Notifications
	m.Notifications = nil
	return out
}

// DrainAlerts returns and clears Alerts.
func (m *MockInbox) DrainAlerts() []domain.Alert {
	out := m.Alerts
	m.Alerts = nil
	return out
}
