package events

import (
	"context"
	"errors"

	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/store"
)

// StoreAlert returns the alert shown for a store failure.
// Only fetch and save failures are user-visible; ok is false for anything
// else, including failures caused by a cancelled or expired context.
func StoreAlert(err error) (alert domain.Alert, ok bool) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Alert{}, false
	case errors.Is(err, store.ErrSaveFailed):
		return domain.AlertStoreSave, true
	case errors.Is(err, store.ErrFetchFailed):
		return domain.AlertStoreFetch, true
	}
	return domain.Alert{}, false
}

// RaiseAlert publishes alert as an alert.raised event.
func RaiseAlert(ctx context.Context, emitter EventEmitter, alert domain.Alert) error {
	return Emit(ctx, emitter, TypeAlertRaised, AlertRaisedPayload{Alert: alert})
}
