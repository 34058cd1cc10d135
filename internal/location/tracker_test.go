package location

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	providence = geo.Coordinate{Latitude: 41.826084, Longitude: -71.403246}
	baseTime   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// mockProvider is a Provider with overridable behaviour.
type mockProvider struct {
	StartFn func(ctx context.Context) error
	starts  int
	stops   int
}

func (m *mockProvider) StartUpdates(ctx context.Context) error {
	m.starts++
	if m.StartFn != nil {
		return m.StartFn(ctx)
	}
	return nil
}

func (m *mockProvider) StopUpdates() { m.stops++ }

// mockHandler records forwarded locations.
type mockHandler struct {
	mu    sync.Mutex
	calls []Fix
}

func (m *mockHandler) HandleLocation(ctx context.Context, location geo.Coordinate, now time.Time) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Fix{Coordinate: location, Timestamp: now})
	return nil, nil
}

type alertRecorder struct {
	alerts []domain.Alert
}

func (r *alertRecorder) HandleEvent(ctx context.Context, event *events.Event) error {
	var payload events.AlertRaisedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	r.alerts = append(r.alerts, payload.Alert)
	return nil
}

func newTestTracker(provider Provider) (*Tracker, *mockHandler, *alertRecorder) {
	handler := &mockHandler{}
	rec := &alertRecorder{}
	emitter := events.NewInMemoryEventEmitter(testLogger)
	emitter.RegisterHandler(rec)
	return NewTracker(provider, handler, emitter, testLogger), handler, rec
}

func TestTracker_HandleAuthorization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    Authorization
		wantErr   error
		wantAlert *domain.Alert
		wantStart int
		wantStop  int
	}{
		{name: "not determined", status: AuthorizationNotDetermined},
		{name: "authorized", status: AuthorizationAuthorized, wantStart: 1},
		{name: "restricted", status: AuthorizationRestricted, wantErr: ErrRestricted, wantAlert: &domain.AlertLocationRestricted, wantStop: 1},
		{name: "denied", status: AuthorizationDenied, wantErr: ErrDenied, wantAlert: &domain.AlertLocationDenied, wantStop: 1},
		{name: "services disabled", status: AuthorizationServicesDisabled, wantErr: ErrDisabled, wantAlert: &domain.AlertLocationDisabled, wantStop: 1},
		{name: "unknown", status: "sometimes", wantErr: ErrInvalidAuthorization},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			provider := &mockProvider{}
			tracker, _, rec := newTestTracker(provider)

			err := tracker.HandleAuthorization(context.Background(), tt.status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			if tt.wantAlert != nil {
				require.Len(t, rec.alerts, 1)
				assert.Equal(t, *tt.wantAlert, rec.alerts[0])
				assert.Equal(t, domain.DefaultDismissAction, rec.alerts[0].DismissAction)
			} else {
				assert.Empty(t, rec.alerts)
			}
			assert.Equal(t, tt.wantStart, provider.starts)
			assert.Equal(t, tt.wantStop, provider.stops)
		})
	}
}

func TestTracker_AlertsOncePerCause(t *testing.T) {
	t.Parallel()
	tracker, _, rec := newTestTracker(&mockProvider{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, tracker.HandleAuthorization(ctx, AuthorizationDenied), ErrDenied)
	}
	assert.ErrorIs(t, tracker.HandleAuthorization(ctx, AuthorizationRestricted), ErrRestricted)
	assert.ErrorIs(t, tracker.HandleAuthorization(ctx, AuthorizationDenied), ErrDenied)
	require.Len(t, rec.alerts, 2)

	require.NoError(t, tracker.HandleAuthorization(ctx, AuthorizationAuthorized))
	assert.ErrorIs(t, tracker.HandleAuthorization(ctx, AuthorizationDenied), ErrDenied)
	assert.Len(t, rec.alerts, 3, "revoking again after authorization alerts again")
}

func TestTracker_StartFailureIsUnavailable(t *testing.T) {
	t.Parallel()
	provider := &mockProvider{StartFn: func(ctx context.Context) error {
		return errors.New("no gps")
	}}
	tracker, _, rec := newTestTracker(provider)

	err := tracker.HandleAuthorization(context.Background(), AuthorizationAuthorized)
	assert.ErrorIs(t, err, ErrUnavailable)
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, domain.AlertLocationUnavailable, rec.alerts[0])
}

func TestTracker_HandleUpdate(t *testing.T) {
	t.Parallel()
	tracker, handler, _ := newTestTracker(&mockProvider{})
	ctx := context.Background()

	_, err := tracker.HandleUpdate(ctx, providence, baseTime)
	require.NoError(t, err)
	assert.Empty(t, handler.calls, "updates are ignored until authorized")

	require.NoError(t, tracker.HandleAuthorization(ctx, AuthorizationAuthorized))

	_, err = tracker.HandleUpdate(ctx, providence, baseTime)
	require.NoError(t, err)
	_, err = tracker.HandleUpdate(ctx, providence, baseTime.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, handler.calls, 1, "out-of-order updates are dropped")
	assert.Equal(t, baseTime, handler.calls[0].Timestamp)

	fix, ok := tracker.LastFix()
	require.True(t, ok)
	assert.Equal(t, providence, fix.Coordinate)

	_, err = tracker.HandleUpdate(ctx, geo.Coordinate{Latitude: 95}, baseTime.Add(time.Second))
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestPushProvider(t *testing.T) {
	t.Parallel()
	var p PushProvider
	assert.False(t, p.Running())
	require.NoError(t, p.StartUpdates(context.Background()))
	assert.True(t, p.Running())
	p.StopUpdates()
	assert.False(t, p.Running())
}
