package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidTransition signals a session lifecycle edge that is not legal.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrVersionConflict signals an optimistic-lock write that lost the race.
	// Callers must re-read the session and retry with the fresh version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrSessionNotActive signals an operation that requires an in-progress call.
	ErrSessionNotActive = errors.New("session not active")
)
