package types

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Callers branch on these with errors.Is.
var (
	ErrUnauthenticated     = errors.New("no resolved caller identity")
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrConnectionLost      = errors.New("connection lost: reconnect attempts exhausted")
	ErrScreenShareActive   = errors.New("another screen share is already active in this session")
)

// Validation errors.
var (
	ErrInvalidSessionTitle = errors.New("session title must be 1-200 characters")
	ErrInvalidSessionType  = errors.New("invalid session type")
	ErrInvalidUserID       = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole         = errors.New("role must be student, teacher, or admin")
	ErrInvalidMessageType  = errors.New("invalid message type")
	ErrInvalidChangeType   = errors.New("invalid document change type")
	ErrContentTooLarge     = errors.New("content exceeds 64KB limit")
)

// StoreError wraps an underlying persistence failure with the operation
// that issued it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err as a StoreError unless it already is one or is a
// sentinel from the taxonomy above (those pass through untouched so callers
// can still branch on them).
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrParticipantNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
