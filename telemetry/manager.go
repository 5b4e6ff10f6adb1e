package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklogs "go.opentelemetry.io/otel/sdk/log"
	sdkmetrics "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"

	"github.com/pitabwire/resourceloader/config"
)

// Manager installs the global OpenTelemetry providers for a process.
type Manager interface {
	Init(ctx context.Context) error
	Disabled() bool
	LogHandler() slog.Handler
	Shutdown(ctx context.Context) error
}

type manager struct {
	serviceName    string
	serviceVersion string
	viewPackages   []string

	cfg config.ConfigurationTelemetry

	disableTracing bool

	traceTextMap      propagation.TextMapPropagator
	traceExporter     sdktrace.SpanExporter
	traceSampler      sdktrace.Sampler
	metricsReader     sdkmetrics.Reader
	traceLogsExporter sdklogs.Exporter

	logHandler slog.Handler
	shutdowns  []func(context.Context) error
}

func (m *manager) LogHandler() slog.Handler {
	return m.logHandler
}

func (m *manager) Disabled() bool {
	return m.disableTracing || (m.cfg != nil && m.cfg.DisableOpenTelemetry())
}

// NewManager creates a new telemetry setup manager.
func NewManager(ctx context.Context, cfg config.ConfigurationTelemetry, opts ...Option) Manager {
	m := &manager{
		cfg: cfg,
	}

	for _, opt := range opts {
		opt(ctx, m)
	}

	return m
}

func (m *manager) Init(ctx context.Context) error {
	if m.Disabled() {
		return nil
	}

	res, err := m.setupResource()
	if err != nil {
		return err
	}

	m.setupTextMapPropagator()
	m.setupTraceSampler()

	if err = m.setupTraceExporter(ctx); err != nil {
		return err
	}

	if err = m.setupMetricsReader(ctx); err != nil {
		return err
	}

	if err = m.setupLogsExporter(ctx); err != nil {
		return err
	}

	m.setupProviders(res)
	return nil
}

// Shutdown flushes and stops every provider installed by Init.
func (m *manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range m.shutdowns {
		errs = append(errs, shutdown(ctx))
	}
	m.shutdowns = nil
	return errors.Join(errs...)
}

func (m *manager) setupResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(m.serviceName),
		semconv.ServiceVersion(m.serviceVersion),
		semconv.ProcessPID(os.Getpid()),
		semconv.ProcessRuntimeName("go"),
		semconv.ProcessRuntimeVersion(runtime.Version()),
	}

	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

func (m *manager) setupTextMapPropagator() {
	if m.traceTextMap == nil {
		m.traceTextMap = autoprop.NewTextMapPropagator()
	}
}

func (m *manager) setupTraceSampler() {
	if m.traceSampler == nil {
		traceIDRatio := 1.0

		if m.cfg != nil {
			traceIDRatio = m.cfg.SamplingRatio()
		}

		m.traceSampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(traceIDRatio))
	}
}

// Exporters default to "none" so a CLI run never dials a collector unless
// the OTEL_*_EXPORTER variables ask for one.
func (m *manager) setupTraceExporter(ctx context.Context) error {
	if m.traceExporter == nil {
		if os.Getenv("OTEL_TRACES_EXPORTER") == "" {
			_ = os.Setenv("OTEL_TRACES_EXPORTER", "none")
		}
		var err error
		m.traceExporter, err = autoexport.NewSpanExporter(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) setupMetricsReader(ctx context.Context) error {
	if m.metricsReader == nil {
		if os.Getenv("OTEL_METRICS_EXPORTER") == "" {
			_ = os.Setenv("OTEL_METRICS_EXPORTER", "none")
		}
		var err error
		m.metricsReader, err = autoexport.NewMetricReader(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) setupLogsExporter(ctx context.Context) error {
	if m.traceLogsExporter == nil {
		if os.Getenv("OTEL_LOGS_EXPORTER") == "" {
			_ = os.Setenv("OTEL_LOGS_EXPORTER", "none")
		}
		var err error
		m.traceLogsExporter, err = autoexport.NewLogExporter(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) setupProviders(res *resource.Resource) {
	otel.SetTextMapPropagator(m.traceTextMap)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(m.traceSampler),
		sdktrace.WithBatcher(m.traceExporter),
		sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	var views []sdkmetrics.View
	for _, pkg := range m.viewPackages {
		views = append(views, FetchViews(pkg)...)
	}
	mp := sdkmetrics.NewMeterProvider(
		sdkmetrics.WithReader(m.metricsReader),
		sdkmetrics.WithResource(res),
		sdkmetrics.WithView(views...),
	)
	otel.SetMeterProvider(mp)

	lp := sdklogs.NewLoggerProvider(
		sdklogs.WithResource(res),
		sdklogs.WithProcessor(sdklogs.NewBatchProcessor(m.traceLogsExporter)),
	)
	global.SetLoggerProvider(lp)

	m.logHandler = otelslog.NewHandler(m.serviceName,
		otelslog.WithSource(true),
		otelslog.WithLoggerProvider(lp),
		otelslog.WithAttributes(res.Attributes()...))

	m.shutdowns = append(m.shutdowns, tp.Shutdown, mp.Shutdown, lp.Shutdown)
}
