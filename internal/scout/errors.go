package scout

import "errors"

// Sentinel errors shared across store implementations.
var (
	// ErrJobNotFound is returned when no JobRecord exists for an ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when a JobRecord ID is already taken.
	ErrJobExists = errors.New("job already exists")

	// ErrJobFinalized is returned by a conditional status transition when
	// the job already reached a terminal state.
	ErrJobFinalized = errors.New("job already finalized")

	// ErrStoreUnavailable wraps connectivity failures so callers can
	// distinguish an unreachable store from a query error.
	ErrStoreUnavailable = errors.New("store unavailable")
)
