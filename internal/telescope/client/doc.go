// Package client is the resilient layer between the telescope core and its
// Transport.
//
// A Client adds three things to a bare exchange:
//
//   - Retry with exponential backoff and jitter, only for unreachable and
//     transient outcomes. Rejections and protocol errors fail on the spot.
//   - A TTL cache for idempotent queries, keyed by endpoint and parameters,
//     with concurrent identical queries collapsed into one fetch. Commands
//     bypass the cache and invalidate the endpoints they affect.
//   - Classification. Every failure is an *Error whose Kind is one of
//     Transient, Rejected, Unreachable or Protocol, and which matches the
//     corresponding sentinel with errors.Is.
//
// Usage:
//
//	c := client.New(tr, client.Options{MaxAttempts: 3})
//	raw, err := c.Query(ctx, protocol.QueryPosition)
//	if errors.Is(err, client.ErrUnreachable) {
//	    // device is gone for now
//	}
package client
