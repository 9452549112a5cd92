package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 250 * time.Millisecond
	DefaultBackoffMax  = 2 * time.Second
	DefaultJitter      = 0.2
	DefaultCacheTTL    = 500 * time.Millisecond
)

// Logger is the logging interface used by the client.
// This allows injecting the application's structured logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that discards all output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CallInfo describes one completed Call for observers.
type CallInfo struct {
	Endpoint string
	Cached   bool
	Attempts int
	Duration time.Duration
	Kind     Kind
}

// Observer receives a CallInfo after every Call. It runs on the caller's
// goroutine and must not block.
type Observer func(CallInfo)

// Options configures a Client.
type Options struct {
	// MaxAttempts is the total number of tries per call, including the first.
	MaxAttempts int

	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Jitter is the randomisation factor applied to each backoff delay.
	// Negative disables jitter.
	Jitter float64

	// CacheTTL is used for cacheable calls that do not name their own TTL.
	CacheTTL time.Duration

	// AttemptTimeout bounds each transport exchange. Zero lets the transport decide.
	AttemptTimeout time.Duration

	Logger   Logger
	Observer Observer

	// Now is the cache clock. Nil means time.Now.
	Now func() time.Time
}

// Call is one logical request to the device.
type Call struct {
	Request transport.Request

	// Cacheable marks an idempotent query that may be served from cache.
	Cacheable bool

	// TTL overrides Options.CacheTTL for this call.
	TTL time.Duration

	// Invalidates lists endpoints whose cached results become stale once
	// this call succeeds. Only meaningful for non-cacheable calls.
	Invalidates []string
}

// Stats is a snapshot of client counters.
type Stats struct {
	Calls       uint64     `json:"calls"`
	Requests    uint64     `json:"requests"`
	Retries     uint64     `json:"retries"`
	Shared      uint64     `json:"shared"`
	Transient   uint64     `json:"transient"`
	Rejected    uint64     `json:"rejected"`
	Unreachable uint64     `json:"unreachable"`
	Protocol    uint64     `json:"protocol"`
	Cache       CacheStats `json:"cache"`
}

// Client wraps a Transport with retry/backoff, response caching and error
// classification.
//
// Cacheable calls for the same endpoint and parameters that arrive while a
// fetch is in flight share that fetch instead of issuing their own.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	transport transport.Transport
	opts      Options
	cache     *Cache
	flight    singleflight.Group
	logger    Logger

	calls       atomic.Uint64
	requests    atomic.Uint64
	retries     atomic.Uint64
	shared      atomic.Uint64
	transient   atomic.Uint64
	rejected    atomic.Uint64
	unreachable atomic.Uint64
	protocol    atomic.Uint64
}

// New creates a Client over t.
func New(t transport.Transport, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = max(DefaultBackoffMax, opts.BackoffBase)
	}
	if opts.Jitter == 0 {
		opts.Jitter = DefaultJitter
	} else if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Client{
		transport: t,
		opts:      opts,
		cache:     NewCache(opts.Now),
		logger:    logger,
	}
}

// Query performs a cacheable call using the default TTL.
func (c *Client) Query(ctx context.Context, req transport.Request) (json.RawMessage, error) {
	return c.Call(ctx, Call{Request: req, Cacheable: true})
}

// Command performs a non-cacheable call and, once the device accepts it,
// drops cached results for the invalidated endpoints.
func (c *Client) Command(ctx context.Context, req transport.Request, invalidates ...string) (json.RawMessage, error) {
	return c.Call(ctx, Call{Request: req, Invalidates: invalidates})
}

// Call performs one logical request.
//
// Parameters:
//   - ctx: Cancels the call, including any backoff wait
//   - call: What to send and how to cache it
//
// Returns:
//   - json.RawMessage: The device result (Value.result for method_sync calls)
//   - error: An *Error matching ErrTransient, ErrRejected, ErrUnreachable or ErrProtocol
func (c *Client) Call(ctx context.Context, call Call) (json.RawMessage, error) {
	c.calls.Add(1)
	start := time.Now()
	endpoint := call.Request.Endpoint()

	var (
		raw      json.RawMessage
		err      error
		attempts int
		cached   bool
	)

	if call.Cacheable {
		raw, attempts, cached, err = c.cached(ctx, call)
	} else {
		raw, attempts, err = c.retry(ctx, call.Request)
		if err == nil {
			for _, ep := range call.Invalidates {
				c.cache.InvalidateEndpoint(ep)
			}
		}
	}

	kind := KindOf(err)
	c.count(kind)
	if c.opts.Observer != nil {
		c.opts.Observer(CallInfo{
			Endpoint: endpoint,
			Cached:   cached,
			Attempts: attempts,
			Duration: time.Since(start),
			Kind:     kind,
		})
	}
	return raw, err
}

// cached serves a cacheable call from cache or fetches it once for all
// concurrent callers.
func (c *Client) cached(ctx context.Context, call Call) (json.RawMessage, int, bool, error) {
	key, err := call.Request.Key()
	if err != nil {
		return nil, 0, false, &Error{Kind: KindProtocol, Endpoint: call.Request.Endpoint(), Err: err}
	}

	if raw, ok := c.cache.Get(key); ok {
		return raw, 0, true, nil
	}

	ttl := call.TTL
	if ttl == 0 {
		ttl = c.opts.CacheTTL
	}

	type fetched struct {
		raw      json.RawMessage
		attempts int
	}
	v, err, shared := c.flight.Do(key, func() (any, error) {
		// A caller that finished just before us may have filled it.
		if raw, ok := c.cache.peek(key); ok {
			return fetched{raw: raw}, nil
		}
		raw, attempts, err := c.retry(ctx, call.Request)
		if err != nil {
			return fetched{attempts: attempts}, err
		}
		c.cache.Put(key, call.Request.Endpoint(), raw, ttl)
		return fetched{raw: raw, attempts: attempts}, nil
	})
	if shared {
		c.shared.Add(1)
	}

	f, _ := v.(fetched)
	return f.raw, f.attempts, false, err
}

// retry sends req until it succeeds, fails permanently, or attempts run out.
func (c *Client) retry(ctx context.Context, req transport.Request) (json.RawMessage, int, error) {
	endpoint := req.Endpoint()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BackoffBase
	b.MaxInterval = c.opts.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = c.opts.Jitter

	attempts := 0
	var last *Error

	raw, err := backoff.Retry(ctx, func() (json.RawMessage, error) {
		attempts++
		raw, cerr := c.attempt(ctx, req)
		if cerr == nil {
			return raw, nil
		}
		last = cerr
		if !cerr.Kind.Retryable() {
			return nil, backoff.Permanent(cerr)
		}
		return nil, cerr
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.retries.Add(1)
			c.logger.Debug("retrying device call",
				"endpoint", endpoint,
				"attempt", attempts,
				"backoff", next,
				"error", err,
			)
		}),
	)
	if err == nil {
		return raw, attempts, nil
	}

	if last == nil {
		// Retry gave up without running the operation.
		last = &Error{Kind: KindUnreachable, Endpoint: endpoint, Err: err}
	}
	last.Attempts = attempts
	return nil, attempts, last
}

// attempt performs one exchange and classifies the outcome.
func (c *Client) attempt(ctx context.Context, req transport.Request) (json.RawMessage, *Error) {
	c.requests.Add(1)
	endpoint := req.Endpoint()

	resp, err := c.transport.Send(ctx, req, c.opts.AttemptTimeout)
	if err != nil {
		return nil, classifyTransportErr(endpoint, err)
	}
	if resp == nil {
		return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Err: errors.New("nil response")}
	}
	if cerr := classifyResponse(endpoint, resp); cerr != nil {
		return nil, cerr
	}

	result := resp.Result()
	if len(result) > 0 && !json.Valid(result) {
		return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Err: fmt.Errorf("invalid result JSON")}
	}
	return result, nil
}

// Invalidate drops any cached result for req. Missing entries are ignored.
func (c *Client) Invalidate(req transport.Request) {
	key, err := req.Key()
	if err != nil {
		return
	}
	c.cache.Invalidate(key)
}

// InvalidateEndpoint drops cached results for endpoint across all parameters.
func (c *Client) InvalidateEndpoint(endpoint string) {
	c.cache.InvalidateEndpoint(endpoint)
}

// Cache exposes the response cache for inspection and maintenance.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	return Stats{
		Calls:       c.calls.Load(),
		Requests:    c.requests.Load(),
		Retries:     c.retries.Load(),
		Shared:      c.shared.Load(),
		Transient:   c.transient.Load(),
		Rejected:    c.rejected.Load(),
		Unreachable: c.unreachable.Load(),
		Protocol:    c.protocol.Load(),
		Cache:       c.cache.Stats(),
	}
}

func (c *Client) count(kind Kind) {
	switch kind {
	case KindTransient:
		c.transient.Add(1)
	case KindRejected:
		c.rejected.Add(1)
	case KindUnreachable:
		c.unreachable.Add(1)
	case KindProtocol:
		c.protocol.Add(1)
	}
}
