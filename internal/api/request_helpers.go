package api

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/store"
)

// newRequestValidator returns a validator that reports JSON field names.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// getPathUUID extracts a UUID from the URL path parameters.
// It parses and validates the UUID, handling common error cases.
//
// Parameters:
//   - r: The HTTP request
//   - paramName: The name of the path parameter to extract
//
// Returns:
//   - (uuid.UUID, nil): The parsed UUID if valid
//   - (uuid.UUID{}, error): A zero UUID and domain.ErrInvalidID if the parameter is missing or invalid
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidID, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", domain.ErrInvalidID, paramName)
	}
	return id, nil
}

// boxParams are the query parameters of a map viewport, in this order.
var boxParams = []string{"sw_lat", "sw_lng", "ne_lat", "ne_lng"}

// parseTaskQuery builds a store query from the task list parameters.
// status takes a comma-separated list. The viewport needs all four corners
// or none of them.
func parseTaskQuery(r *http.Request) (store.Query, error) {
	values := r.URL.Query()
	query := store.AllTasks()

	if raw := values.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.TaskStatus(strings.TrimSpace(part))
			if !status.Valid() {
				return store.Query{}, fmt.Errorf("%w: %q", domain.ErrInvalidTaskStatus, part)
			}
			query.Statuses = append(query.Statuses, status)
		}
	}

	present := 0
	corners := make([]float64, len(boxParams))
	for i, name := range boxParams {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		present++
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return store.Query{}, fmt.Errorf("%w: %s is not a number", geo.ErrInvalidCoordinate, name)
		}
		corners[i] = v
	}

	switch present {
	case 0:
		return query, nil
	case len(boxParams):
	default:
		return store.Query{}, fmt.Errorf("%w: viewport needs %s",
			geo.ErrInvalidCoordinate, strings.Join(boxParams, ", "))
	}

	sw := geo.Coordinate{Latitude: corners[0], Longitude: corners[1]}
	ne := geo.Coordinate{Latitude: corners[2], Longitude: corners[3]}
	for _, c := range []geo.Coordinate{sw, ne} {
		if err := c.Validate(); err != nil {
			return store.Query{}, err
		}
	}
	if sw.Latitude > ne.Latitude {
		return store.Query{}, fmt.Errorf("%w: south-west corner is north of north-east corner",
			geo.ErrInvalidCoordinate)
	}
	return query.And(store.InBoundingBox(sw, ne)), nil
}
