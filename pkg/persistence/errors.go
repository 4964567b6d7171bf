package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrSessionNotFound indicates a session was not found by the given identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists indicates a session with the same identifier already exists.
	ErrSessionExists = errors.New("session already exists")

	// ErrVersionConflict indicates the session was changed by someone else
	// since it was loaded.
	ErrVersionConflict = errors.New("session version conflict")

	// ErrInvalidSession indicates a session that cannot be stored.
	ErrInvalidSession = errors.New("invalid session")
)

// SessionError wraps session store errors with additional context.
type SessionError struct {
	Op        string // Operation being performed (e.g., "Get", "Update")
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s operation failed for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for session errors.
func (e *SessionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSessionError creates a new session error with context.
func NewSessionError(op, sessionID string, err error) *SessionError {
	return &SessionError{
		Op:        op,
		SessionID: sessionID,
		Err:       err,
	}
}

// IsSessionNotFound checks if an error indicates a session was not found.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsVersionConflict checks if an error indicates a concurrent modification.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
