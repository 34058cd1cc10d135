package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
)

// DefaultCapacity bounds each queue in the inbox.
const DefaultCapacity = 100

// Notification is one tasks.failed delivery.
type Notification struct {
	ID        uuid.UUID     `json:"id"`
	Tasks     []domain.Task `json:"tasks"`
	CreatedAt time.Time     `json:"created_at"`
}

// Inbox is an events.EventHandler that queues notifications and alerts.
// When a queue is full the oldest entry is dropped.
type Inbox struct {
	capacity int
	logger   *slog.Logger

	mu            sync.Mutex
	notifications []Notification
	alerts        []domain.Alert
}

// NewInbox creates an inbox holding at most capacity entries per queue.
// A non-positive capacity selects DefaultCapacity.
func NewInbox(capacity int, logger *slog.Logger) *Inbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		capacity: capacity,
		logger:   logger.With(slog.String("component", "inbox")),
	}
}

var _ events.EventHandler = (*Inbox)(nil)

// HandleEvent implements events.EventHandler. Unrelated event types are ignored.
func (i *Inbox) HandleEvent(ctx context.Context, event *events.Event) error {
	switch event.Type {
	case events.TypeTasksFailed:
		var payload events.TasksFailedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		i.mu.Lock()
		i.notifications = appendBounded(i.notifications, Notification{
			ID:        event.ID,
			Tasks:     payload.Tasks,
			CreatedAt: event.CreatedAt,
		}, i.capacity)
		i.mu.Unlock()
		i.logger.Debug("queued failure notification", slog.Int("tasks", len(payload.Tasks)))

	case events.TypeAlertRaised:
		var payload events.AlertRaisedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		i.mu.Lock()
		i.alerts = appendBounded(i.alerts, payload.Alert, i.capacity)
		i.mu.Unlock()
		i.logger.Debug("queued alert", slog.String("alert", payload.Alert.Kind))
	}
	return nil
}

// DrainNotifications returns and clears the queued notifications, oldest first.
func (i *Inbox) DrainNotifications() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.notifications
	i.notifications = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// DrainAlerts returns and clears the queued alerts, oldest first.
func (i *Inbox) DrainAlerts() []domain.Alert {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.alerts
	i.alerts = nil
	if out == nil {
		out = []domain.Alert{}
	}
	return out
}

func appendBounded[T any](queue []T, item T, capacity int) []T {
	queue = append(queue, item)
	if over := len(queue) - capacity; over > 0 {
		queue = append(queue[:0:0], queue[over:]...)
	}
	return queue
}
