// Package telemetry sets up OpenTelemetry metric and trace providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// EndpointEnv enables OTLP export when set. The exporters read the rest of
// the standard OTEL_EXPORTER_OTLP_* variables themselves.
const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// Providers holds the meter and tracer providers for the process.
type Providers struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider

	shutdown []func(context.Context) error
}

// Enabled reports whether spans and metrics are exported.
func (p *Providers) Enabled() bool {
	return len(p.shutdown) > 0
}

// Setup returns OTLP/gRPC-backed providers when OTEL_EXPORTER_OTLP_ENDPOINT
// is set and noop providers otherwise. The providers are also installed as
// the otel globals.
func Setup(ctx context.Context, serviceName, version string) (*Providers, error) {
	if os.Getenv(EndpointEnv) == "" {
		return &Providers{
			MeterProvider:  metricnoop.NewMeterProvider(),
			TracerProvider: tracenoop.NewTracerProvider(),
		}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	metricExp, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	traceExp, err := otlptracegrpc.New(ctx)
	if err != nil {
		_ = metricExp.Shutdown(ctx)
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp),
	)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return &Providers{
		MeterProvider:  mp,
		TracerProvider: tp,
		shutdown:       []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

// Shutdown flushes and stops the exporters. It is a no-op for noop providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}
