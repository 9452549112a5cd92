// Package transport performs single request/response exchanges with a
// Seestar telescope's HTTP control endpoint.
//
// The device speaks an Alpaca-style action envelope: every call is a
// form-encoded PUT to /api/v1/telescope/{n}/action carrying an Action name
// and a JSON Parameters blob. Most operations use the "method_sync" action
// with the real method name nested inside Parameters.
//
// A Transport makes exactly one network call per Send. It does not retry and
// does not interpret device error codes; it only separates "no answer"
// (ErrUnreachable) from "an answer we could not parse" (ErrMalformedResponse)
// and hands everything else back as a Response. Retry, caching and error
// classification live in the client package.
//
// Requests are paced through a token-bucket limiter so bursts of callers do
// not overrun the device's single-threaded HTTP server.
package transport
