package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	applyCounter  otelmetric.Int64Counter
	applyDuration otelmetric.Float64Histogram
}

// New registers the OpenTelemetry Prometheus exporter on the default registry.
func New(serviceName string) *Observability {
	return NewWithRegisterer(serviceName, promclient.DefaultRegisterer)
}

func NewWithRegisterer(serviceName string, reg promclient.Registerer) *Observability {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	applyCounter, _ := meter.Int64Counter(
		"store.apply",
		otelmetric.WithDescription("Number of read-modify-write cycles"),
	)

	applyDuration, _ := meter.Float64Histogram(
		"store.apply.duration",
		otelmetric.WithDescription("Read-modify-write cycle duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		applyCounter:  applyCounter,
		applyDuration: applyDuration,
	}
}

// RecordApply records one finished read-modify-write cycle.
func (o *Observability) RecordApply(ctx context.Context, backend, status string, attempts int, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
		attribute.Int("attempts", attempts),
	)
	if o.applyCounter != nil {
		o.applyCounter.Add(ctx, 1, attrs)
	}
	if o.applyDuration != nil {
		o.applyDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
