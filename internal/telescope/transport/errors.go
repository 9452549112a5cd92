package transport

import "errors"

// Domain-specific errors for device exchanges.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnreachable is returned when no response was received at all:
	// dial failure, connection reset, or the per-attempt timeout elapsed.
	ErrUnreachable = errors.New("transport: device unreachable")

	// ErrMalformedResponse is returned when the device answered with a
	// success status but the body could not be parsed.
	ErrMalformedResponse = errors.New("transport: malformed response")
)
