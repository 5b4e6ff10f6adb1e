package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Units are encoded according to the case-sensitive abbreviations from the
// Unified Code for Units of Measure: http://unitsofmeasure.org/ucum.html.
const (
	unitDimensionless = "1"
	unitMilliseconds  = "ms"
	unitBytes         = "By"

	completedMeterName = "/completed_resources"
	bytesMeterName     = "/resource_bytes"
)

//nolint:gochecknoglobals // histogram boundaries are shared by every view
var defaultMillisecondsBoundaries = []float64{
	0.0, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 8.0, 10.0, 13.0, 16.0, 20.0, 25.0,
	30.0, 40.0, 50.0, 65.0, 80.0, 100.0, 130.0, 160.0, 200.0, 250.0, 300.0, 400.0, 500.0, 650.0,
	800.0, 1000.0, 2000.0, 5000.0, 10000.0,
}

// Views returns the metric views that shape the latency histogram of pkg.
func Views(pkg string) []sdkmetric.View {
	return []sdkmetric.View{
		func(inst sdkmetric.Instrument) (sdkmetric.Stream, bool) {
			if inst.Kind != sdkmetric.InstrumentKindHistogram || inst.Name != pkg+"/latency" {
				return sdkmetric.Stream{}, false
			}
			return sdkmetric.Stream{
				Name:        inst.Name,
				Description: "Distribution of resource fetch latency, by method and status.",
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: defaultMillisecondsBoundaries,
				},
				AttributeFilter: func(kv attribute.KeyValue) bool {
					return kv.Key == AttrStatusKey || kv.Key == AttrMethodKey
				},
			}, true
		},
	}
}

// CounterView returns a summation view for the counter pkg+meterName.
func CounterView(pkg string, meterName string, description string) []sdkmetric.View {
	return []sdkmetric.View{
		func(inst sdkmetric.Instrument) (sdkmetric.Stream, bool) {
			if inst.Kind != sdkmetric.InstrumentKindCounter || inst.Name != pkg+meterName {
				return sdkmetric.Stream{}, false
			}
			return sdkmetric.Stream{
				Name:        inst.Name,
				Description: description,
				Aggregation: sdkmetric.DefaultAggregationSelector(sdkmetric.InstrumentKindCounter),
			}, true
		},
	}
}

func meter(pkg string) metric.Meter {
	return otel.Meter(pkg, metric.WithInstrumentationAttributes(AttrPackageKey.String(pkg)))
}

// LatencyMeasure returns the latency histogram of pkg.
func LatencyMeasure(pkg string) metric.Float64Histogram {
	m, err := meter(pkg).Float64Histogram(
		pkg+"/latency",
		metric.WithDescription("Latency distribution of resource fetches"),
		metric.WithUnit(unitMilliseconds),
	)
	if err != nil {
		// Only invalid instrument names fail here.
		panic(fmt.Sprintf("pkg=%q: %v", pkg, err))
	}
	return m
}

// DimensionlessMeasure creates a counter for dimensionless measurements.
func DimensionlessMeasure(pkg string, meterName string, description string) metric.Int64Counter {
	m, err := meter(pkg).Int64Counter(
		pkg+meterName,
		metric.WithDescription(description),
		metric.WithUnit(unitDimensionless),
	)
	if err != nil {
		panic(fmt.Sprintf("pkg=%q, meter=%q: %v", pkg, meterName, err))
	}
	return m
}

// BytesMeasure creates a counter for byte measurements.
func BytesMeasure(pkg string, meterName string, description string) metric.Int64Counter {
	m, err := meter(pkg).Int64Counter(pkg+meterName, metric.WithDescription(description), metric.WithUnit(unitBytes))
	if err != nil {
		panic(fmt.Sprintf("pkg=%q, meter=%q: %v", pkg, meterName, err))
	}
	return m
}

// FetchMetrics counts settled resources and the raw bytes they loaded.
type FetchMetrics struct {
	completed metric.Int64Counter
	bytes     metric.Int64Counter
}

// NewFetchMetrics registers the resource counters of pkg.
func NewFetchMetrics(pkg string) *FetchMetrics {
	return &FetchMetrics{
		completed: DimensionlessMeasure(pkg, completedMeterName, "Count of settled resources by kind and status."),
		bytes:     BytesMeasure(pkg, bytesMeterName, "Raw bytes loaded for resources by kind."),
	}
}

// FetchViews returns every view needed to export the metrics of pkg.
func FetchViews(pkg string) []sdkmetric.View {
	views := Views(pkg)
	views = append(views, CounterView(pkg, completedMeterName, "Count of settled resources by kind and status.")...)
	return append(views, CounterView(pkg, bytesMeterName, "Raw bytes loaded for resources by kind.")...)
}

// Settled records the outcome of one resource. A nil receiver records nothing.
func (m *FetchMetrics) Settled(ctx context.Context, kind string, size int, err error) {
	if m == nil {
		return
	}
	kindAttr := AttrKindKey.String(kind)
	m.completed.Add(ctx, 1, metric.WithAttributes(kindAttr, AttrStatusKey.String(ErrorCode(err))))
	if err == nil && size > 0 {
		m.bytes.Add(ctx, int64(size), metric.WithAttributes(kindAttr))
	}
}
