package channel

import (
	"context"
	"fmt"
)

// RawEvent is one undecoded notification as delivered by a transport
type RawEvent struct {
	ID   string
	Name string
	Data []byte
}

// Stream is a single live subscription. Next blocks until a notification arrives, the
// connection fails, or ctx is done.
type Stream interface {
	Next(ctx context.Context) (RawEvent, error)
	Close() error
}

// Transport opens subscriptions to a room's notification stream
type Transport interface {
	Subscribe(ctx context.Context, code string) (Stream, error)
	Name() string
}

// TransportError wraps a failure of the underlying stream. The channel retries these.
type TransportError struct {
	Code    string
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("room %s stream (attempt %d): %v", e.Code, e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
