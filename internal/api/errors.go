package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/pintask/internal/api/shared"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/geo"
	"github.com/phrazzld/pintask/internal/lifecycle"
	"github.com/phrazzld/pintask/internal/location"
	"github.com/phrazzld/pintask/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Bad request errors
	case errors.Is(err, domain.ErrInvalidDeadline),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, domain.ErrNegativeAmount),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, location.ErrInvalidAuthorization),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Location permission errors
	case errors.Is(err, location.ErrRestricted),
		errors.Is(err, location.ErrDenied),
		errors.Is(err, location.ErrDisabled):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, lifecycle.ErrTaskNotFailed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrTaskExists):
		return http.StatusConflict

	// Dependency errors; the client may retry
	case errors.Is(err, store.ErrFetchFailed),
		errors.Is(err, store.ErrSaveFailed),
		errors.Is(err, location.ErrUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrInvalidDeadline):
		return domain.AlertInvalidDeadline.Message

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid task ID"

	case errors.Is(err, domain.ErrInvalidTaskStatus):
		return "Invalid task status"

	case errors.Is(err, geo.ErrInvalidCoordinate):
		return "Invalid coordinate"

	case errors.Is(err, location.ErrInvalidAuthorization):
		return "Invalid authorization status"

	case errors.Is(err, domain.ErrNegativeAmount):
		return "Challenge amount cannot be negative"

	case errors.Is(err, domain.ErrInvalidAmount):
		return "Challenge amount must have at most two decimal places and fit the store"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid task data"

	case errors.Is(err, location.ErrRestricted):
		return domain.AlertLocationRestricted.Message

	case errors.Is(err, location.ErrDenied):
		return domain.AlertLocationDenied.Message

	case errors.Is(err, location.ErrDisabled):
		return domain.AlertLocationDisabled.Message

	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Task not found"

	case errors.Is(err, lifecycle.ErrTaskNotFailed):
		return "Task has not failed"

	case errors.Is(err, domain.ErrInvalidTransition):
		return "Task can no longer change state"

	case errors.Is(err, store.ErrTaskExists):
		return "Task already exists"

	case errors.Is(err, store.ErrFetchFailed):
		return domain.AlertStoreFetch.Message

	case errors.Is(err, store.ErrSaveFailed):
		return domain.AlertStoreSave.Message

	case errors.Is(err, location.ErrUnavailable):
		return domain.AlertLocationUnavailable.Message

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. The status and message
// come from MapErrorToStatusCode and GetSafeErrorMessage unless defaultMsg
// overrides the message for unclassified errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}

	var opts []shared.ResponseOption
	if status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// handleRequestError responds to a body that failed to decode or validate.
func handleRequestError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message naming the first failing field.
func SanitizeValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldErr := validationErrors[0]
		return fmt.Sprintf("Invalid %s: %s",
			toSnakeCase(fieldErr.Field()), getValidationTagMessage(fieldErr.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
