package client

import (
	"errors"
	"fmt"
)

// Classification sentinels. Every error returned by Client.Call is an
// *Error that matches exactly one of these with errors.Is.
var (
	// ErrTransient means the device kept answering "busy" or with a retryable
	// HTTP status until attempts ran out.
	ErrTransient = errors.New("client: transient device error")

	// ErrRejected means the device refused the request as invalid. Never retried.
	ErrRejected = errors.New("client: request rejected")

	// ErrUnreachable means no response arrived on any attempt.
	ErrUnreachable = errors.New("client: device unreachable")

	// ErrProtocol means a response arrived but could not be interpreted.
	ErrProtocol = errors.New("client: protocol error")
)

// Kind is the classification of a failed call.
type Kind int

// Failure kinds.
const (
	KindNone Kind = iota
	KindTransient
	KindRejected
	KindUnreachable
	KindProtocol
)

// String returns the lowercase name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindUnreachable:
		return "unreachable"
	case KindProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable reports whether another attempt could succeed.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindUnreachable
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransient:
		return ErrTransient
	case KindRejected:
		return ErrRejected
	case KindUnreachable:
		return ErrUnreachable
	case KindProtocol:
		return ErrProtocol
	default:
		return nil
	}
}

// Error is a classified call failure.
type Error struct {
	Kind     Kind
	Endpoint string
	Attempts int

	// Code and Message carry the device-reported error, when there was one.
	Code    int
	Message string

	// Err is the underlying cause (transport error, decode error), if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
	if e.Message != "" {
		msg += fmt.Sprintf(" (device %d: %s)", e.Code, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the classification sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Reason returns a short human-readable explanation.
func (e *Error) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// KindOf extracts the classification from err. Errors that did not come from
// the client report KindNone when nil and KindProtocol otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	default:
		return KindProtocol
	}
}
