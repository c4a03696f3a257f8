package upstream

import "errors"

// Sentinel errors for the upstream package.
var (
	// ErrTransient is returned for failures worth retrying on the next pass:
	// network errors, 5xx responses and rate limiting.
	ErrTransient = errors.New("upstream temporarily unavailable")

	// ErrNotFound is returned when the service does not know the handle.
	ErrNotFound = errors.New("upstream task not found")

	// ErrSubmissionFailed is returned when a new task could not be created.
	ErrSubmissionFailed = errors.New("upstream submission failed")

	// ErrUnrecognizedResponse is returned when a response carries no usable identifier.
	ErrUnrecognizedResponse = errors.New("unrecognized upstream response")

	// ErrUnrecognizedState marks a status string outside the known vocabulary.
	ErrUnrecognizedState = errors.New("unrecognized upstream state")

	// ErrUnauthorized is returned when the API key is rejected.
	ErrUnauthorized = errors.New("upstream rejected api key")
)
