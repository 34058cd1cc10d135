package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/location"
	"github.com/phrazzld/pintask/internal/proximity"
)

// MockLocationService mocks the location tracker.
type MockLocationService struct {
	HandleAuthorizationFn func(ctx context.Context, status location.Authorization) error
	HandleUpdateFn        func(ctx context.Context, coordinate geo.Coordinate, timestamp time.Time) ([]domain.Task, error)

	// CurrentStatus is returned by Status and updated by HandleAuthorization.
	CurrentStatus location.Authorization
}

// HandleAuthorization stores status and returns HandleAuthorizationFn's result.
func (m *MockLocationService) HandleAuthorization(ctx context.Context, status location.Authorization) error {
	if status.Valid() {
		m.CurrentStatus = status
	}
	if m.HandleAuthorizationFn != nil {
		return m.HandleAuthorizationFn(ctx, status)
	}
	return nil
}

// HandleUpdate returns HandleUpdateFn's result, or nothing completed.
func (m *MockLocationService) HandleUpdate(
	ctx context.Context,
	coordinate geo.Coordinate,
	timestamp time.Time,
) ([]domain.Task, error) {
	if m.HandleUpdateFn != nil {
		return m.HandleUpdateFn(ctx, coordinate, timestamp)
	}
	return nil, nil
}

// Status returns CurrentStatus.
func (m *MockLocationService) Status() location.Authorization {
	return m.CurrentStatus
}

// MockRegionService mocks the proximity monitor.
type MockRegionService struct {
	OnRegionEnteredFn func(ctx context.Context, regionID uuid.UUID, now time.Time) (bool, error)

	// Watched is returned by Regions.
	Watched []proximity.Region
}

// Regions returns Watched.
func (m *MockRegionService) Regions() []proximity.Region {
	return m.Watched
}

// OnRegionEntered returns OnRegionEnteredFn's result, or false.
func (m *MockRegionService) OnRegionEntered(ctx context.Context, regionID uuid.UUID, now time.Time) (bool, error) {
	if m.OnRegionEnteredFn != nil {
		return m.OnRegionEnteredFn(ctx, regionID, now)
	}
	return false, nil
}
