package messaging

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReplyTimeout is returned when no reply arrives within the deadline.
	ErrReplyTimeout = errors.New("messaging: reply timeout")

	// ErrBadRequest marks an inbound request body that cannot be parsed.
	// Handlers wrap it so the responder drops the message instead of
	// requeueing it forever.
	ErrBadRequest = errors.New("messaging: malformed request body")
)

// TransportError indicates the bus could not carry the operation.
type TransportError struct {
	Op    string // operation that failed
	Queue string // target queue
	Err   error  // underlying error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("messaging transport error: %s on queue %s: %v", e.Op, e.Queue, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates no reply arrived before the call deadline.
type TimeoutError struct {
	Queue string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("messaging: no reply from queue %s after %v", e.Queue, e.After)
}

func (e *TimeoutError) Unwrap() error {
	return ErrReplyTimeout
}
