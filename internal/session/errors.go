package session

import "errors"

// Domain errors for the session package.
//
// ErrTransitionRejected deserves a note: a rejected event is a normal
// outcome of the lifecycle rules (wrong state, or a time guard not yet
// satisfied), not a fault. Callers that merely relay device chatter
// swallow it; the management API surfaces it as a conflict.
var (
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrTransitionRejected is returned when the lifecycle rules do not
	// accept an event in the session's current state.
	ErrTransitionRejected = errors.New("session: transition rejected")

	// ErrStatusConflict is returned when a session's status changed
	// between read and write and the optimistic update could not be
	// applied.
	ErrStatusConflict = errors.New("session: concurrent status change")

	// ErrInvalidEvent is returned when an event name is not recognised.
	ErrInvalidEvent = errors.New("session: invalid event")

	// ErrInvalidType is returned when a session type or wire code is not
	// recognised.
	ErrInvalidType = errors.New("session: invalid type")
)
