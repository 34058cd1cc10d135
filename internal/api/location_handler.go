package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/api/shared"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/location"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/proximity"
)

// LocationService is the part of the location tracker the API drives.
type LocationService interface {
	HandleAuthorization(ctx context.Context, status location.Authorization) error
	HandleUpdate(ctx context.Context, coordinate geo.Coordinate, timestamp time.Time) ([]domain.Task, error)
	Status() location.Authorization
}

// RegionService is the part of the proximity monitor the API drives.
type RegionService interface {
	Regions() []proximity.Region
	OnRegionEntered(ctx context.Context, regionID uuid.UUID, now time.Time) (bool, error)
}

var (
	_ LocationService = (*location.Tracker)(nil)
	_ RegionService   = (*proximity.Monitor)(nil)
)

// LocationHandler accepts location provider callbacks over HTTP.
type LocationHandler struct {
	tracker   LocationService
	regions   RegionService
	validator *validator.Validate
	now       func() time.Time
	logger    *slog.Logger
}

// NewLocationHandler creates a new LocationHandler
func NewLocationHandler(
	tracker LocationService,
	regions RegionService,
	now func() time.Time,
	logger *slog.Logger,
) *LocationHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationHandler{
		tracker:   tracker,
		regions:   regions,
		validator: newRequestValidator(),
		now:       now,
		logger:    logger.With(slog.String("component", "location_handler")),
	}
}

// UpdateLocation handles POST /api/location requests
func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationUpdateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleRequestError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleRequestError(w, r, err)
		return
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = h.now()
	}

	coordinate := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	completed, err := h.tracker.HandleUpdate(r.Context(), coordinate, timestamp)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process location")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, LocationUpdateResponse{Completed: tasksToResponse(completed)})
}

// UpdateAuthorization handles POST /api/location/authorization requests.
// Restricted, denied and disabled are valid states, so they answer 200 with
// the cause rather than an error status.
func (h *LocationHandler) UpdateAuthorization(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req AuthorizationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleRequestError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleRequestError(w, r, err)
		return
	}

	err := h.tracker.HandleAuthorization(r.Context(), location.Authorization(req.Status))
	resp := AuthorizationResponse{Status: string(h.tracker.Status())}
	switch {
	case err == nil:
		resp.Updating = h.tracker.Status() == location.AuthorizationAuthorized
	case errors.Is(err, location.ErrRestricted),
		errors.Is(err, location.ErrDenied),
		errors.Is(err, location.ErrDisabled):
		resp.Cause = err.Error()
	default:
		HandleAPIError(w, r, err, "Failed to update authorization")
		return
	}

	log.Debug("authorization updated via API",
		slog.String("status", resp.Status),
		slog.Bool("updating", resp.Updating))
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// EnterRegion handles POST /api/regions/{id}/enter requests
func (h *LocationHandler) EnterRegion(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	completed, err := h.regions.OnRegionEntered(r.Context(), id, h.now())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process region entry")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RegionEnteredResponse{RegionID: id, Completed: completed})
}

// ListRegions handles GET /api/regions requests
func (h *LocationHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions := h.regions.Regions()
	if regions == nil {
		regions = []proximity.Region{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, RegionListResponse{Regions: regions})
}
