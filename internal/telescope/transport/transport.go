package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 1 << 20

	defaultTimeout = 10 * time.Second
	defaultBurst   = 3
)

// Transport performs one exchange with the device.
//
// Send returns a Response for anything the device answered, including
// non-2xx statuses. It returns an error wrapping ErrUnreachable when no
// answer arrived within timeout, or ErrMalformedResponse when a 2xx body
// could not be parsed.
type Transport interface {
	Send(ctx context.Context, req Request, timeout time.Duration) (*Response, error)
}

// Func adapts an ordinary function to the Transport interface.
type Func func(ctx context.Context, req Request, timeout time.Duration) (*Response, error)

// Send calls f(ctx, req, timeout).
func (f Func) Send(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	return f(ctx, req, timeout)
}

// Options configures an HTTP transport.
type Options struct {
	Host         string
	Port         int
	DeviceNumber int
	ClientID     string

	// Timeout is used when Send is called with a zero timeout.
	Timeout time.Duration

	// RequestsPerSecond paces requests; zero or negative disables pacing.
	RequestsPerSecond float64

	// HTTPClient overrides the default client (tests use httptest servers).
	HTTPClient *http.Client
}

// HTTP is the network Transport for a real device.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type HTTP struct {
	endpoint   string
	clientID   string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	txn        atomic.Uint64
}

// NewHTTP creates an HTTP transport for the device described by opts.
func NewHTTP(opts Options) *HTTP {
	if opts.DeviceNumber == 0 {
		opts.DeviceNumber = 1
	}
	if opts.ClientID == "" {
		opts.ClientID = "1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &HTTP{
		endpoint:   fmt.Sprintf("http://%s:%d/api/v1/telescope/%d/action", opts.Host, opts.Port, opts.DeviceNumber),
		clientID:   opts.ClientID,
		timeout:    opts.Timeout,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, defaultBurst),
	}
}

// Endpoint returns the action URL requests are sent to.
func (t *HTTP) Endpoint() string {
	return t.endpoint
}

// Send performs one PUT to the device's action endpoint.
func (t *HTTP) Send(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = t.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params, err := req.Parameters()
	if err != nil {
		return nil, err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: pacing: %w", ErrUnreachable, req.Endpoint(), err)
	}

	form := url.Values{}
	form.Set("Action", req.action())
	form.Set("Parameters", params)
	form.Set("ClientID", t.clientID)
	form.Set("ClientTransactionID", strconv.FormatUint(t.txn.Add(1), 10))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", req.Endpoint(), err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, req.Endpoint(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		// The connection died mid-body; treat as no answer.
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrUnreachable, req.Endpoint(), err)
	}

	return decode(req, resp.StatusCode, body)
}

// decode turns a received body into a Response.
func decode(req Request, status int, body []byte) (*Response, error) {
	out := &Response{StatusCode: status}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if out.OK() {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, req.Endpoint(), err)
		}
		// Non-2xx bodies are often plain text; keep a short excerpt.
		out.ErrorMessage = excerpt(body)
		return out, nil
	}

	out.Value = env.Value
	out.ErrorNumber = env.ErrorNumber
	out.ErrorMessage = env.ErrorMessage
	return out, nil
}

func excerpt(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

// IsUnreachable reports whether err means the device gave no answer.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
