package jobs

import "errors"

// Sentinel errors for the jobs package.
var (
	// ErrNotFound is returned when no job has the requested id.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a requested state change is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidInput is returned when a create request carries no usable payload.
	ErrInvalidInput = errors.New("invalid job input")

	// ErrLocked is returned when the state directory lock could not be acquired.
	ErrLocked = errors.New("state directory locked")
)
