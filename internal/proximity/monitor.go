package proximity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/store"
)

// CompletionMode selects what happens to a task when the user arrives.
type CompletionMode string

const (
	// CompletionComplete marks the task completed and keeps the record.
	CompletionComplete CompletionMode = "complete"
	// CompletionDelete removes the task.
	CompletionDelete CompletionMode = "delete"
)

// ErrInvalidCompletionMode is returned for an unknown completion mode.
var ErrInvalidCompletionMode = errors.New("invalid completion mode")

// ParseCompletionMode converts a configuration value into a CompletionMode.
// An empty string selects CompletionComplete.
func ParseCompletionMode(s string) (CompletionMode, error) {
	switch CompletionMode(s) {
	case "", CompletionComplete:
		return CompletionComplete, nil
	case CompletionDelete:
		return CompletionDelete, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCompletionMode, s)
}

// Region is a circular geofence around an active task. Its ID is the task ID.
type Region struct {
	ID           uuid.UUID      `json:"id"`
	Center       geo.Coordinate `json:"center"`
	RadiusMeters float64        `json:"radius_meters"`
}

// Monitor owns the watched region set and completes tasks on arrival.
type Monitor struct {
	repo    store.TaskRepository
	emitter events.EventEmitter
	mode    CompletionMode
	logger  *slog.Logger

	mu      sync.Mutex
	regions map[uuid.UUID]Region
	// pending holds the changes made while each Refresh is reading the store.
	pending map[*regionChanges]struct{}
}

// regionChanges records Watch and retire calls that race with a Refresh, so
// the reloaded set does not undo them.
type regionChanges struct {
	watched map[uuid.UUID]Region
	retired map[uuid.UUID]struct{}
}

// Ensure Monitor can subscribe to the event bus
var _ events.EventHandler = (*Monitor)(nil)

// NewMonitor creates a proximity monitor over repo.
// A nil emitter discards events; a nil logger falls back to the default.
func NewMonitor(
	repo store.TaskRepository,
	emitter events.EventEmitter,
	mode CompletionMode,
	logger *slog.Logger,
) (*Monitor, error) {
	if repo == nil {
		return nil, errors.New("proximity: repo cannot be nil")
	}
	if _, err := ParseCompletionMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = CompletionComplete
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		repo:    repo,
		emitter: emitter,
		mode:    mode,
		logger:  logger.With(slog.String("component", "proximity_monitor")),
		regions: make(map[uuid.UUID]Region),
		pending: make(map[*regionChanges]struct{}),
	}, nil
}

// RegisterRegions replaces the watched set with one region per active task in tasks.
func (m *Monitor) RegisterRegions(tasks []domain.Task) {
	m.replace(tasks, nil)
}

func (m *Monitor) replace(tasks []domain.Task, changes *regionChanges) {
	regions := make(map[uuid.UUID]Region, len(tasks))
	for _, task := range tasks {
		if task.Status != domain.TaskStatusActive {
			continue
		}
		regions[task.ID] = regionFor(task)
	}

	m.mu.Lock()
	if changes != nil {
		delete(m.pending, changes)
		for id, region := range changes.watched {
			regions[id] = region
		}
		for id := range changes.retired {
			delete(regions, id)
		}
	}
	m.regions = regions
	m.mu.Unlock()

	m.logger.Debug("regions registered", slog.Int("count", len(regions)))
}

func regionFor(task domain.Task) Region {
	return Region{
		ID:           task.ID,
		Center:       task.Coordinate(),
		RadiusMeters: domain.RegionRadiusMeters,
	}
}

// Watch adds a region for task if it is active.
func (m *Monitor) Watch(task domain.Task) {
	if task.Status != domain.TaskStatusActive {
		return
	}
	region := regionFor(task)

	m.mu.Lock()
	m.regions[task.ID] = region
	for changes := range m.pending {
		changes.watched[task.ID] = region
		delete(changes.retired, task.ID)
	}
	m.mu.Unlock()
}

// HandleEvent implements events.EventHandler. New tasks are watched as soon
// as they are stored.
func (m *Monitor) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeTaskCreated {
		return nil
	}
	var payload events.TaskCreatedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	m.Watch(payload.Task)
	logger.FromContextOrDefault(ctx, m.logger).Debug("watching new task",
		slog.String("task_id", payload.Task.ID.String()))
	return nil
}

// Regions returns a snapshot of the watched regions ordered by ID.
func (m *Monitor) Regions() []Region {
	m.mu.Lock()
	out := make([]Region, 0, len(m.regions))
	for _, region := range m.regions {
		out = append(out, region)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Refresh reloads the active tasks and re-registers their regions.
// Regions watched or retired while the store is being read keep that change.
func (m *Monitor) Refresh(ctx context.Context) error {
	changes := &regionChanges{
		watched: make(map[uuid.UUID]Region),
		retired: make(map[uuid.UUID]struct{}),
	}
	m.mu.Lock()
	m.pending[changes] = struct{}{}
	m.mu.Unlock()

	tasks, err := m.repo.Find(ctx, store.ByStatus(domain.TaskStatusActive))
	if err != nil {
		m.mu.Lock()
		delete(m.pending, changes)
		m.mu.Unlock()
		m.alert(ctx, err)
		return fmt.Errorf("refresh regions: %w", err)
	}

	active := make([]domain.Task, len(tasks))
	for i, task := range tasks {
		active[i] = *task
	}
	m.replace(active, changes)
	return nil
}

// OnRegionEntered handles a region-entry callback. Entries for unknown or
// retired regions are ignored. It reports whether this call completed the task.
func (m *Monitor) OnRegionEntered(ctx context.Context, regionID uuid.UUID, now time.Time) (bool, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	m.mu.Lock()
	_, watched := m.regions[regionID]
	m.mu.Unlock()

	if !watched {
		log.Debug("ignoring entry for unwatched region", slog.String("region_id", regionID.String()))
		return false, nil
	}

	return m.arrive(ctx, regionID, now)
}

// EvaluateByDistance returns the active candidates within the region radius
// of location. A task exactly on the boundary is in range.
func EvaluateByDistance(location geo.Coordinate, candidates []domain.Task) []domain.Task {
	var inRange []domain.Task
	for _, task := range candidates {
		if task.Status != domain.TaskStatusActive {
			continue
		}
		if geo.Distance(location, task.Coordinate()) <= domain.RegionRadiusMeters {
			inRange = append(inRange, task)
		}
	}
	return inRange
}

// HandleLocation checks a polled location against nearby active tasks and
// completes every task in range. It returns the tasks this call completed.
func (m *Monitor) HandleLocation(ctx context.Context, location geo.Coordinate, now time.Time) ([]domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	if err := location.Validate(); err != nil {
		return nil, err
	}

	sw, ne := geo.BoundingBox(location, domain.RegionRadiusMeters)
	query := store.ByStatus(domain.TaskStatusActive).And(store.InBoundingBox(sw, ne))

	nearby, err := m.repo.Find(ctx, query)
	if err != nil {
		m.alert(ctx, err)
		return nil, fmt.Errorf("find nearby tasks: %w", err)
	}

	candidates := make([]domain.Task, len(nearby))
	for i, task := range nearby {
		candidates[i] = *task
	}

	var completed []domain.Task
	for _, task := range EvaluateByDistance(location, candidates) {
		won, err := m.arrive(ctx, task.ID, now)
		if err != nil {
			return completed, err
		}
		if won {
			completed = append(completed, task)
		}
	}

	log.Debug("location evaluated",
		slog.Int("nearby", len(candidates)),
		slog.Int("completed", len(completed)))
	return completed, nil
}

// arrive is the single arbitration point for both arrival paths. Inside one
// unit of work it re-reads the task and acts only while it is still active
// and its deadline has not passed.
func (m *Monitor) arrive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	var won bool
	err := m.repo.Do(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		won = false
		task, err := tasks.GetByID(ctx, id)
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if task.Status != domain.TaskStatusActive {
			return nil
		}
		if task.IsOverdue(now) {
			// Too late; the next reconciliation fails it.
			log.Info("ignoring arrival after deadline",
				slog.String("task_id", id.String()),
				slog.Time("deadline", *task.Deadline))
			return nil
		}

		switch m.mode {
		case CompletionDelete:
			err = tasks.Delete(ctx, id)
		default:
			if _, err = task.Complete(now); err == nil {
				err = tasks.Update(ctx, task)
			}
		}
		if err != nil {
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		log.Error("failed to complete task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		m.alert(ctx, err)
		return false, fmt.Errorf("complete task %s: %w", id, err)
	}

	// Whatever the outcome, the task can no longer be completed.
	m.retire(id)

	if won {
		log.Info("task completed",
			slog.String("task_id", id.String()),
			slog.String("mode", string(m.mode)))
		if err := events.Emit(ctx, m.emitter, events.TypeTaskCompleted, events.TaskCompletedPayload{
			TaskID:  id,
			Deleted: m.mode == CompletionDelete,
		}); err != nil {
			log.Warn("failed to emit completion event", slog.String("error", err.Error()))
		}
	}
	return won, nil
}

func (m *Monitor) retire(id uuid.UUID) {
	m.mu.Lock()
	delete(m.regions, id)
	for changes := range m.pending {
		delete(changes.watched, id)
		changes.retired[id] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *Monitor) alert(ctx context.Context, err error) {
	alert, ok := events.StoreAlert(err)
	if !ok {
		return
	}
	if emitErr := events.RaiseAlert(ctx, m.emitter, alert); emitErr != nil {
		logger.FromContextOrDefault(ctx, m.logger).Warn("failed to raise alert",
			slog.String("alert", alert.Kind),
			slog.String("error", emitErr.Error()))
	}
}
