package room

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/stopify/go/internal/room/events"
)

var (
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrStaleEvent      = errors.New("stale event")
	ErrRoundNotActive  = errors.New("round is not active")
	ErrUnknownCategory = errors.New("unknown category")
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionRunning  = errors.New("session already running")
)

// StateError means a notification did not match the adopted round and was ignored
type StateError struct {
	Event  events.EventType
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("ignoring %s: %s", e.Event, e.Reason)
}

func (e *StateError) Unwrap() error { return ErrStaleEvent }

func staleEvent(event events.EventType, format string, args ...any) error {
	return &StateError{Event: event, Reason: fmt.Sprintf(format, args...)}
}

// SubmissionError is a failed answer submission. It is reported, not retried.
type SubmissionError struct {
	RoundID uuid.UUID
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit answers for round %s: %v", e.RoundID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
