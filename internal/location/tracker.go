package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/platform/logger"
)

// Authorization is the provider's permission state.
type Authorization string

// Authorization values reported by the provider.
const (
	AuthorizationNotDetermined    Authorization = "not_determined"
	AuthorizationRestricted       Authorization = "restricted"
	AuthorizationDenied           Authorization = "denied"
	AuthorizationAuthorized       Authorization = "authorized"
	AuthorizationServicesDisabled Authorization = "services_disabled"
)

// Valid reports whether a is a known authorization value.
func (a Authorization) Valid() bool {
	switch a {
	case AuthorizationNotDetermined, AuthorizationRestricted, AuthorizationDenied,
		AuthorizationAuthorized, AuthorizationServicesDisabled:
		return true
	}
	return false
}

// Location errors
var (
	ErrUnavailable          = errors.New("location unavailable")
	ErrRestricted           = errors.New("location restricted")
	ErrDenied               = errors.New("location denied")
	ErrDisabled             = errors.New("location services disabled")
	ErrInvalidAuthorization = errors.New("invalid authorization status")
)

// Provider is the source of coordinate updates.
type Provider interface {
	StartUpdates(ctx context.Context) error
	StopUpdates()
}

// LocationHandler consumes accepted coordinate updates.
type LocationHandler interface {
	HandleLocation(ctx context.Context, location geo.Coordinate, now time.Time) ([]domain.Task, error)
}

// Fix is an accepted coordinate update.
type Fix struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Tracker connects a Provider to the proximity monitor.
type Tracker struct {
	provider Provider
	handler  LocationHandler
	emitter  events.EventEmitter
	logger   *slog.Logger

	mu      sync.Mutex
	status  Authorization
	alerted map[string]bool
	last    *Fix
}

// NewTracker creates a tracker in the not-determined state.
func NewTracker(provider Provider, handler LocationHandler, emitter events.EventEmitter, logger *slog.Logger) *Tracker {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		provider: provider,
		handler:  handler,
		emitter:  emitter,
		logger:   logger.With(slog.String("component", "location_tracker")),
		status:   AuthorizationNotDetermined,
		alerted:  make(map[string]bool),
	}
}

// Status returns the current authorization.
func (t *Tracker) Status() Authorization {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastFix returns the most recent accepted update, if any.
func (t *Tracker) LastFix() (Fix, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Fix{}, false
	}
	return *t.last, true
}

// HandleAuthorization reacts to a provider authorization change.
// Authorized starts updates; restricted, denied and services-disabled stop
// them and raise the matching alert the first time that cause is seen.
// The returned error names the cause; the tracker keeps working either way.
func (t *Tracker) HandleAuthorization(ctx context.Context, status Authorization) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAuthorization, status)
	}

	t.mu.Lock()
	previous := t.status
	t.status = status
	if status == AuthorizationAuthorized {
		// Re-arm alerts for the next revocation.
		t.alerted = make(map[string]bool)
	}
	t.mu.Unlock()

	log.Info("location authorization changed",
		slog.String("from", string(previous)),
		slog.String("to", string(status)))

	switch status {
	case AuthorizationAuthorized:
		if err := t.provider.StartUpdates(ctx); err != nil {
			log.Error("failed to start location updates", slog.String("error", err.Error()))
			t.alertOnce(ctx, domain.AlertLocationUnavailable)
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	case AuthorizationRestricted:
		t.provider.StopUpdates()
		t.alertOnce(ctx, domain.AlertLocationRestricted)
		return ErrRestricted
	case AuthorizationDenied:
		t.provider.StopUpdates()
		t.alertOnce(ctx, domain.AlertLocationDenied)
		return ErrDenied
	case AuthorizationServicesDisabled:
		t.provider.StopUpdates()
		t.alertOnce(ctx, domain.AlertLocationDisabled)
		return ErrDisabled
	}
	return nil
}

// HandleUpdate forwards a coordinate update to the location handler.
// Updates are dropped while unauthorized or when older than the last accepted fix.
func (t *Tracker) HandleUpdate(ctx context.Context, coordinate geo.Coordinate, timestamp time.Time) ([]domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, t.logger)

	if err := coordinate.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.status != AuthorizationAuthorized {
		t.mu.Unlock()
		log.Debug("dropping location update while unauthorized")
		return nil, nil
	}
	if t.last != nil && timestamp.Before(t.last.Timestamp) {
		t.mu.Unlock()
		log.Debug("dropping out-of-order location update",
			slog.Time("timestamp", timestamp),
			slog.Time("last", t.last.Timestamp))
		return nil, nil
	}
	t.last = &Fix{Coordinate: coordinate, Timestamp: timestamp}
	t.mu.Unlock()

	return t.handler.HandleLocation(ctx, coordinate, timestamp)
}

func (t *Tracker) alertOnce(ctx context.Context, alert domain.Alert) {
	t.mu.Lock()
	if t.alerted[alert.Kind] {
		t.mu.Unlock()
		return
	}
	t.alerted[alert.Kind] = true
	t.mu.Unlock()

	if err := events.RaiseAlert(ctx, t.emitter, alert); err != nil {
		t.logger.Warn("failed to raise alert",
			slog.String("alert", alert.Kind),
			slog.String("error", err.Error()))
	}
}
