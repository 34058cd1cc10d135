package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidDeadline is returned when a task deadline is missing or not
	// far enough in the future at creation time.
	ErrInvalidDeadline = errors.New("invalid deadline")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTaskStatus is returned when a task status is not valid.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTransition is returned when a status change would leave a
	// terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNegativeAmount is returned when a challenge amount is below zero.
	ErrNegativeAmount = errors.New("challenge amount cannot be negative")

	// ErrInvalidAmount is returned when a challenge amount has more than
	// AmountPlaces decimal places or exceeds MaxChallengeAmount.
	ErrInvalidAmount = errors.New("invalid challenge amount")
)
