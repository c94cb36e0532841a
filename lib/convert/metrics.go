package convert

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records conversion outcomes.
type Metrics struct {
	conversionDuration metric.Float64Histogram
	conversionTotal    metric.Int64Counter
}

// NewMetrics creates a Metrics instance on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	conversionDuration, err := meter.Float64Histogram(
		"bootimg_conversion_duration_seconds",
		metric.WithDescription("Duration of image conversions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	conversionTotal, err := meter.Int64Counter(
		"bootimg_conversions_total",
		metric.WithDescription("Total number of image conversions"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		conversionDuration: conversionDuration,
		conversionTotal:    conversionTotal,
	}, nil
}

// RecordConversion records one finished conversion. Nil receivers are
// ignored so managers without a meter can skip metrics entirely.
func (m *Metrics) RecordConversion(ctx context.Context, status string, stage Stage, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}
	if stage != "" {
		attrs = append(attrs, attribute.String("stage", string(stage)))
	}

	m.conversionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.conversionTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
