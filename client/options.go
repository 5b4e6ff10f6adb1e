package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeoutSeconds     = 30
	defaultHTTPIdleTimeoutSeconds = 90
	defaultMaxResponseBodyLen     = 10 << 20
	defaultUserAgent              = "resourceloader"
)

// Option configures the resource fetcher and its HTTP client.
type Option func(*httpConfig)

type httpConfig struct {
	timeout     time.Duration
	idleTimeout time.Duration
	transport   http.RoundTripper
	maxBodyLen  int64
	userAgent   string
	breaker     bool

	rateLimit float64
	rateBurst int

	traceRequests       bool
	traceRequestHeaders bool
	traceResponseBody   bool
}

func newHTTPConfig(opts ...Option) *httpConfig {
	cfg := &httpConfig{
		timeout:     time.Duration(defaultHTTPTimeoutSeconds) * time.Second,
		idleTimeout: time.Duration(defaultHTTPIdleTimeoutSeconds) * time.Second,
		maxBodyLen:  defaultMaxResponseBodyLen,
		userAgent:   defaultUserAgent,
		breaker:     true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithRateLimit paces requests to each host to requestsPerSecond, allowing
// bursts of burst requests. A non positive rate disables pacing.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *httpConfig) {
		c.rateLimit = requestsPerSecond
		c.rateBurst = burst
	}
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(timeout time.Duration) Option {
	return func(c *httpConfig) {
		c.timeout = timeout
	}
}

// WithIdleTimeout sets the idle connection timeout of the default transport.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *httpConfig) {
		c.idleTimeout = timeout
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *httpConfig) {
		c.transport = transport
	}
}

// WithMaxBodyLen caps the size of a fetched resource. Zero disables the cap.
func WithMaxBodyLen(n int64) Option {
	return func(c *httpConfig) {
		c.maxBodyLen = n
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(agent string) Option {
	return func(c *httpConfig) {
		c.userAgent = agent
	}
}

// WithoutCircuitBreaker sends every request straight to the transport.
func WithoutCircuitBreaker() Option {
	return func(c *httpConfig) {
		c.breaker = false
	}
}

// WithTraceRequests logs every request and response.
func WithTraceRequests() Option {
	return func(c *httpConfig) {
		c.traceRequests = true
	}
}

// WithTraceRequestHeaders also logs headers. Headers may hold secrets.
func WithTraceRequestHeaders() Option {
	return func(c *httpConfig) {
		c.traceRequestHeaders = true
	}
}

// WithTraceResponseBody also logs the head of every response body.
func WithTraceResponseBody() Option {
	return func(c *httpConfig) {
		c.traceResponseBody = true
	}
}

// NewHTTPClient creates the HTTP client used to fetch url resources.
// Without an explicit transport it wraps http.DefaultTransport with otelhttp.
func NewHTTPClient(opts ...Option) *http.Client {
	return newHTTPClient(newHTTPConfig(opts...))
}

func newHTTPClient(cfg *httpConfig) *http.Client {
	transport := cfg.transport
	if transport == nil {
		base := http.DefaultTransport
		if t, ok := base.(*http.Transport); ok && cfg.idleTimeout > 0 {
			clone := t.Clone()
			clone.IdleConnTimeout = cfg.idleTimeout
			base = clone
		}
		transport = otelhttp.NewTransport(base)
	}

	if cfg.traceRequests {
		transport = NewLoggingTransport(transport,
			WithTransportLogHeaders(cfg.traceRequestHeaders),
			WithTransportLogBody(cfg.traceResponseBody))
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.timeout,
	}
}
