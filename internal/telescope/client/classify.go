package client

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// transientMarkers are device error texts that mean "try again shortly".
var transientMarkers = []string{
	"busy",
	"not ready",
	"in progress",
	"try again",
	"timeout",
	"timed out",
	"temporarily",
}

// classifyTransportErr maps a failed Send onto a Kind.
func classifyTransportErr(endpoint string, err error) *Error {
	kind := KindProtocol
	if errors.Is(err, transport.ErrUnreachable) {
		kind = KindUnreachable
	}
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}

// classifyResponse returns nil when the response is a success, otherwise a
// classified error.
func classifyResponse(endpoint string, resp *transport.Response) *Error {
	if !resp.OK() {
		return &Error{
			Kind:     statusKind(resp.StatusCode),
			Endpoint: endpoint,
			Code:     resp.StatusCode,
			Message:  httpMessage(resp),
		}
	}

	code, msg := resp.DeviceError()
	if code == 0 && msg == "" {
		return nil
	}
	kind := KindRejected
	if isTransientMessage(msg) {
		kind = KindTransient
	}
	if msg == "" {
		msg = "device error"
	}
	return &Error{Kind: kind, Endpoint: endpoint, Code: code, Message: msg}
}

func statusKind(status int) Kind {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return KindTransient
	}
	if status >= 400 && status < 600 {
		return KindRejected
	}
	// 1xx/3xx from an Alpaca endpoint means we are not talking to one.
	return KindProtocol
}

func httpMessage(resp *transport.Response) string {
	if resp.ErrorMessage != "" {
		return resp.ErrorMessage
	}
	return http.StatusText(resp.StatusCode)
}

func isTransientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
