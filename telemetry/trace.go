package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on resource fetch spans and metrics.
//
//nolint:gochecknoglobals // OpenTelemetry attribute keys must be global for reuse
var (
	AttrMethodKey   = attribute.Key("resourceloader_method")
	AttrPackageKey  = attribute.Key("resourceloader_package")
	AttrStatusKey   = attribute.Key("resourceloader_status")
	AttrErrorKey    = attribute.Key("resourceloader_error")
	AttrResourceKey = attribute.Key("resourceloader_resource")
	AttrKindKey     = attribute.Key("resourceloader_kind")
	AttrLocationKey = attribute.Key("resourceloader_location")
	AttrLocaleKey   = attribute.Key("resourceloader_locale")
)

type contextKey string

const (
	startTimeContextKey  contextKey = "spanStartTimeCtxKey"
	methodNameContextKey contextKey = "methodNameCtxKey"
)

type tracer struct {
	name           string
	tracer         trace.Tracer
	latencyMeasure metric.Float64Histogram
}

// NewTracer creates a tracer whose spans also feed the latency histogram
// named after pkg.
func NewTracer(pkg string, options ...trace.TracerOption) Tracer {
	return &tracer{
		name:           pkg,
		tracer:         otel.Tracer(pkg, options...),
		latencyMeasure: LatencyMeasure(pkg),
	}
}

// Start creates and starts a new span and returns the updated context and span.
// The caller is responsible for ending the span with End.
//
//nolint:spancheck // spans are returned to the caller which ends them
func (t *tracer) Start(
	ctx context.Context,
	spanName string,
	options ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	fullName := t.name + "/" + spanName

	options = append(options, trace.WithAttributes(AttrMethodKey.String(spanName)))

	sCtx, span := t.tracer.Start(ctx, spanName, options...)
	sCtx = context.WithValue(sCtx, startTimeContextKey, time.Now())
	return context.WithValue(sCtx, methodNameContextKey, fullName), span
}

// End completes a span with error information if applicable and records the
// elapsed time.
func (t *tracer) End(ctx context.Context, span trace.Span, err error, options ...trace.SpanEndOption) {
	startTime, ok := ctx.Value(startTimeContextKey).(time.Time)
	if !ok {
		util.Log(ctx).WithField("value", ctx.Value(startTimeContextKey)).Error("span ended without a start time")
		span.End(options...)
		return
	}
	elapsed := time.Since(startTime)

	if err != nil {
		options = append(options, trace.WithStackTrace(true))

		span.SetAttributes(AttrErrorKey.String(err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End(options...)

	methodName, _ := ctx.Value(methodNameContextKey).(string)
	t.latencyMeasure.Record(ctx,
		float64(elapsed.Milliseconds()),
		metric.WithAttributes(
			AttrStatusKey.String(ErrorCode(err)),
			AttrMethodKey.String(methodName)),
	)
}

// ErrorCode folds an error into the low cardinality status recorded on metrics.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline exceeded"
	}
	return "err"
}
