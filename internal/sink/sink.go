package sink

import (
	"context"
	"fmt"

	"traffic-router/internal/record"
	"traffic-router/internal/topic"
)

// Sink terminates the ingestion path of one message. Send makes a single
// attempt: there is no retry and no backoff, and a returned error means the
// message is considered handled anyway. A nil error is success.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, dest topic.Destination, evt record.Event) error
}

// ErrorKind classifies a failed send for diagnostics.
type ErrorKind int

const (
	// Forwarding failures.
	RemoteStatus ErrorKind = iota + 1 // remote responded with a non-2xx status
	NoResponse                        // network/connect failure, nothing came back
	BadRequest                        // the request could not be constructed

	// Storage failures.
	Connection // store unreachable or timed out
	Write      // the store rejected the write
)

func (k ErrorKind) String() string {
	switch k {
	case RemoteStatus:
		return "remote_status"
	case NoResponse:
		return "no_response"
	case BadRequest:
		return "bad_request"
	case Connection:
		return "connection"
	case Write:
		return "write"
	}
	return "unknown"
}

// Error is returned by every Sink on failure.
type Error struct {
	Kind   ErrorKind
	Target string
	// Status is the HTTP status for RemoteStatus failures.
	Status int
	// Body is a prefix of the response body for RemoteStatus failures.
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == RemoteStatus:
		return fmt.Sprintf("%s: %s: status %d: %s", e.Target, e.Kind, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Target, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }
