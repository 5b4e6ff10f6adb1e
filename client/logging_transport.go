package client

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"
)

const defaultMaxLoggedBodySize = 1024

// LoggingTransportOption configures the logging HTTP transport.
type LoggingTransportOption func(*loggingTransport)

// loggingTransport logs every resource request and its response.
type loggingTransport struct {
	transport   http.RoundTripper
	logHeaders  bool
	logBody     bool
	maxBodySize int64
}

// NewLoggingTransport wraps transport so that requests and responses are
// logged. Headers and bodies are left out unless enabled.
func NewLoggingTransport(transport http.RoundTripper, opts ...LoggingTransportOption) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &loggingTransport{
		transport:   transport,
		maxBodySize: defaultMaxLoggedBodySize,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithTransportLogHeaders enables or disables header logging.
// Note: headers may contain credentials.
func WithTransportLogHeaders(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logHeaders = enabled
	}
}

// WithTransportLogBody enables or disables logging the head of the response body.
func WithTransportLogBody(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logBody = enabled
	}
}

// WithTransportMaxBodySize sets how much of a body is logged.
func WithTransportMaxBodySize(size int64) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.maxBodySize = size
	}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	logger := util.Log(req.Context()).WithFields(map[string]any{
		"method": req.Method,
		"url":    req.URL.String(),
	})
	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(req.Header))
	}
	logger.Debug("resource request sent")

	resp, err := t.transport.RoundTrip(req)

	logger = logger.WithField("duration", time.Since(start).String())
	if err != nil {
		logger.WithError(err).Error("resource request failed")
		return resp, err
	}

	logger = logger.WithFields(map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
	})
	if t.logHeaders {
		logger = logger.WithField("responseHeaders", flattenHeaders(resp.Header))
	}
	if t.logBody && resp.Body != nil {
		logger = t.withBody(logger, resp)
	}

	logger.Info("resource response received")
	return resp, nil
}

// withBody logs the head of the response body and puts it back in front of
// the unread remainder.
func (t *loggingTransport) withBody(logger *util.LogEntry, resp *http.Response) *util.LogEntry {
	head, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize))
	if err != nil || len(head) == 0 {
		return logger
	}

	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), resp.Body), resp.Body}

	return logger.WithField("body", string(head))
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			flat[name] = strings.Join(values, " , ")
		}
	}
	return flat
}
