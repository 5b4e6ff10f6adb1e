package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	sdklogs "go.opentelemetry.io/otel/sdk/log"
	sdkmetrics "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Option func(ctx context.Context, m *manager)

// WithDisableTracing disables every provider.
func WithDisableTracing() Option {
	return func(_ context.Context, s *manager) {
		s.disableTracing = true
	}
}

// WithServiceName sets the service name for resource tagging.
func WithServiceName(name string) Option {
	return func(_ context.Context, s *manager) {
		s.serviceName = name
	}
}

// WithServiceVersion sets the service version for resource tagging.
func WithServiceVersion(version string) Option {
	return func(_ context.Context, s *manager) {
		s.serviceVersion = version
	}
}

// WithMetricViews installs the fetch metric views of each named package.
func WithMetricViews(pkgs ...string) Option {
	return func(_ context.Context, s *manager) {
		s.viewPackages = append(s.viewPackages, pkgs...)
	}
}

// WithPropagationTextMap replaces the propagator picked from OTEL_PROPAGATORS.
func WithPropagationTextMap(carrier propagation.TextMapPropagator) Option {
	return func(_ context.Context, s *manager) {
		s.traceTextMap = carrier
	}
}

// WithTraceExporter replaces the span exporter picked from OTEL_TRACES_EXPORTER.
func WithTraceExporter(exporter sdktrace.SpanExporter) Option {
	return func(_ context.Context, s *manager) {
		s.traceExporter = exporter
	}
}

// WithTraceSampler replaces the parent based ratio sampler.
func WithTraceSampler(sampler sdktrace.Sampler) Option {
	return func(_ context.Context, s *manager) {
		s.traceSampler = sampler
	}
}

// WithMetricsReader replaces the reader picked from OTEL_METRICS_EXPORTER.
func WithMetricsReader(reader sdkmetrics.Reader) Option {
	return func(_ context.Context, s *manager) {
		s.metricsReader = reader
	}
}

// WithTraceLogsExporter replaces the log exporter picked from OTEL_LOGS_EXPORTER.
func WithTraceLogsExporter(exporter sdklogs.Exporter) Option {
	return func(_ context.Context, s *manager) {
		s.traceLogsExporter = exporter
	}
}
