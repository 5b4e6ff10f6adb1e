// Package client is the HTTP transport behind the url resource loader.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/net/html/charset"
)

const (
	// OptionHeaders names the request option holding extra request headers,
	// either an http.Header or a map[string]string.
	OptionHeaders = "headers"

	defaultCircuitBreakerMaxRequests = 3
	defaultCircuitBreakerInterval    = 30 * time.Second
	defaultCircuitBreakerTimeout     = 45 * time.Second
	defaultCircuitBreakerThreshold   = 20
	defaultCircuitBreakerFailureRate = 0.5

	maxErrorBodyLen = 512
)

// ErrResponseTooLarge is returned when a resource exceeds the configured size cap.
var ErrResponseTooLarge = errors.New("resource body exceeds configured limit")

// IsErrorStatus reports whether an HTTP status code lies outside [200, 300).
func IsErrorStatus(statusCode int) bool {
	return statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices
}

// StatusError is returned for responses with an error status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// serverError makes the circuit breaker count a 5xx response as a failure.
type serverError struct {
	statusCode int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: HTTP %d", e.statusCode)
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

// Fetcher downloads resource text over HTTP(S). It implements loader.URLFetcher.
type Fetcher struct {
	client   *http.Client
	cfg      *httpConfig
	limiter  *hostLimiter
	breakers sync.Map // map[string]*gobreaker.CircuitBreaker[*response]
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	cfg := newHTTPConfig(opts...)
	f := &Fetcher{
		client: newHTTPClient(cfg),
		cfg:    cfg,
	}
	if cfg.rateLimit > 0 {
		f.limiter = newHostLimiter(cfg.rateLimit, cfg.rateBurst)
	}
	return f
}

// Client returns the HTTP client used by the fetcher.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch issues a GET for url and returns the body decoded to UTF-8 according
// to the response's Content-Type charset.
func (f *Fetcher) Fetch(ctx context.Context, url string, options map[string]any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if f.cfg.userAgent != "" {
		req.Header.Set("User-Agent", f.cfg.userAgent)
	}
	applyHeaders(req, options[OptionHeaders])

	if f.limiter != nil {
		if err = f.limiter.Wait(ctx, req.URL.Host); err != nil {
			return "", fmt.Errorf("waiting to fetch %s: %w", url, err)
		}
	}

	resp, err := f.execute(req)
	if resp == nil {
		return "", err
	}

	var sErr *serverError
	if err != nil && !errors.As(err, &sErr) {
		return "", err
	}

	if IsErrorStatus(resp.statusCode) {
		body := resp.body
		if len(body) > maxErrorBodyLen {
			body = body[:maxErrorBodyLen]
		}
		return "", &StatusError{URL: url, StatusCode: resp.statusCode, Body: string(body)}
	}

	decoded, err := io.ReadAll(mustCharsetReader(ctx, resp))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", url, err)
	}
	return string(decoded), nil
}

func (f *Fetcher) execute(req *http.Request) (*response, error) {
	if !f.cfg.breaker {
		return f.roundTrip(req)
	}
	return f.breakerFor(req.URL.Host).Execute(func() (*response, error) {
		return f.roundTrip(req)
	})
}

func (f *Fetcher) roundTrip(req *http.Request) (*response, error) {
	ctx := req.Context()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer util.CloseAndLogOnError(ctx, resp.Body)

	reader := io.Reader(resp.Body)
	if f.cfg.maxBodyLen > 0 {
		reader = io.LimitReader(resp.Body, f.cfg.maxBodyLen+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if f.cfg.maxBodyLen > 0 && int64(len(body)) > f.cfg.maxBodyLen {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrResponseTooLarge, req.URL, f.cfg.maxBodyLen)
	}

	out := &response{statusCode: resp.StatusCode, header: resp.Header, body: body}
	if resp.StatusCode >= http.StatusInternalServerError {
		return out, &serverError{statusCode: resp.StatusCode}
	}
	return out, nil
}

func (f *Fetcher) breakerFor(host string) *gobreaker.CircuitBreaker[*response] {
	if cb, ok := f.breakers.Load(host); ok {
		//nolint:errcheck // only *gobreaker.CircuitBreaker[*response] is stored
		return cb.(*gobreaker.CircuitBreaker[*response])
	}

	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "resource:" + host,
		MaxRequests: defaultCircuitBreakerMaxRequests,
		Interval:    defaultCircuitBreakerInterval,
		Timeout:     defaultCircuitBreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < defaultCircuitBreakerThreshold {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= defaultCircuitBreakerFailureRate
		},
	})

	actual, _ := f.breakers.LoadOrStore(host, cb)
	//nolint:errcheck // only *gobreaker.CircuitBreaker[*response] is stored
	return actual.(*gobreaker.CircuitBreaker[*response])
}

// mustCharsetReader falls back to the raw bytes when the declared charset is
// unknown.
func mustCharsetReader(ctx context.Context, resp *response) io.Reader {
	contentType := resp.header.Get("Content-Type")
	reader, err := charset.NewReader(bytes.NewReader(resp.body), contentType)
	if err != nil {
		util.Log(ctx).WithError(err).WithField("contentType", contentType).
			Warn("unknown charset, using the body as is")
		return bytes.NewReader(resp.body)
	}
	return reader
}

func applyHeaders(req *http.Request, raw any) {
	switch headers := raw.(type) {
	case http.Header:
		for name, values := range headers {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
	case map[string]string:
		for name, v := range headers {
			req.Header.Set(name, v)
		}
	case map[string]any:
		for name, v := range headers {
			req.Header.Set(name, fmt.Sprint(v))
		}
	}
}
