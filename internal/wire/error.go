// Package wire defines the error vocabulary shared by httpwire and ws.
//
// Both engines converge on one error shape so that callers observe closure
// through a single "closed" signal rather than a scattering of ad-hoc
// sentinels: a stream end, a protocol violation, and an orderly
// Connection: close all reach the caller as a *wire.Error with a Kind they
// can switch on.
package wire

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation stopped.
type Kind int

const (
	// Protocol indicates a malformed frame, bad header, or other violation
	// of the wire format. Terminal for the connection.
	Protocol Kind = iota
	// Stream indicates the underlying byte-stream failed or hit EOF.
	// Terminal for the connection.
	Stream
	// Closed indicates an orderly completion-with-closure: a written
	// message carried Connection: close, or a WebSocket close handshake
	// finished. Not a failure; callers treat it like EOF.
	Closed
	// NeedMore is a non-fatal signal from a body writer that has no data
	// ready yet. Callers loop.
	NeedMore
	// Aborted indicates caller-initiated cancellation of the operation.
	Aborted
	// InvalidArgument indicates a precondition violation, e.g. in Prepare
	// or an option setter.
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol error"
	case Stream:
		return "stream error"
	case Closed:
		return "closed"
	case NeedMore:
		return "need more"
	case Aborted:
		return "aborted"
	case InvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error is the common error type returned by httpwire and ws operations.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, wire.ErrClosed) match any *Error of the same Kind,
// not just the exact sentinel value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind with a message.
func New(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Err: cause}
}

// Sentinels for errors.Is comparisons. Each carries no message or cause;
// constructors above produce distinguishable instances of the same Kind.
var (
	ErrClosed          = New(Closed, "")
	ErrNeedMore        = New(NeedMore, "")
	ErrAborted         = New(Aborted, "")
	ErrInvalidArgument = New(InvalidArgument, "")
)

// KindOf reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (k Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
