package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/lifecycle"
	"github.com/phrazzld/pintask/internal/location"
	"github.com/phrazzld/pintask/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"nil error", nil, http.StatusInternalServerError},
		{"invalid deadline", domain.ErrInvalidDeadline, http.StatusBadRequest},
		{"wrapped invalid deadline", fmt.Errorf("create: %w", domain.ErrInvalidDeadline), http.StatusBadRequest},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"invalid status", domain.ErrInvalidTaskStatus, http.StatusBadRequest},
		{"invalid coordinate", geo.ErrInvalidCoordinate, http.StatusBadRequest},
		{"invalid amount", fmt.Errorf("%w: 5.005", domain.ErrInvalidAmount), http.StatusBadRequest},
		{"invalid authorization", location.ErrInvalidAuthorization, http.StatusBadRequest},
		{"denied", location.ErrDenied, http.StatusForbidden},
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"task not failed", lifecycle.ErrTaskNotFailed, http.StatusConflict},
		{"task exists", store.ErrTaskExists, http.StatusConflict},
		{"fetch failed", fmt.Errorf("%w: timeout", store.ErrFetchFailed), http.StatusServiceUnavailable},
		{"save failed", &lifecycle.EngineError{Operation: "reconcile", Err: store.ErrSaveFailed}, http.StatusServiceUnavailable},
		{"location unavailable", location.ErrUnavailable, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expectedStatus, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, "An unexpected error occurred"},
		{"invalid deadline", domain.ErrInvalidDeadline, domain.AlertInvalidDeadline.Message},
		{"task not found", store.ErrTaskNotFound, "Task not found"},
		{"task not failed", lifecycle.ErrTaskNotFailed, "Task has not failed"},
		{"fetch failed", store.ErrFetchFailed, domain.AlertStoreFetch.Message},
		{"save failed", store.ErrSaveFailed, domain.AlertStoreSave.Message},
		{"restricted", location.ErrRestricted, domain.AlertLocationRestricted.Message},
		{"unknown error hides details", errors.New("pq: relation tasks does not exist"), "An unexpected error occurred"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	t.Run("classified error", func(t *testing.T) {
		t.Parallel()
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/x", nil)

		HandleAPIError(rr, req, store.ErrTaskNotFound, "Failed to get task")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "Task not found")
	})

	t.Run("unclassified error uses default message", func(t *testing.T) {
		t.Parallel()
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)

		HandleAPIError(rr, req, errors.New("connection reset by peer"), "Failed to list tasks")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), "Failed to list tasks")
		assert.NotContains(t, rr.Body.String(), "connection reset")
	})
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	type sample struct {
		Latitude *float64 `json:"latitude" validate:"required"`
		Title    string   `json:"title"    validate:"max=3"`
	}
	v := newRequestValidator()

	err := v.Struct(sample{})
	var validationErrors validator.ValidationErrors
	assert.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "Invalid latitude: required field", SanitizeValidationError(err))

	lat := 1.0
	err = v.Struct(sample{Latitude: &lat, Title: strings.Repeat("x", 4)})
	assert.Equal(t, "Invalid title: too large", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
