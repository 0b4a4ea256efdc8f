package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// instrumentationName is the meter and tracer scope for the monitoring engine.
const instrumentationName = "github.com/ericfisherdev/actionwatch/internal/application"

// Metrics holds the OpenTelemetry instruments recorded by MonitorService.
type Metrics struct {
	cycles             metric.Int64Counter
	cycleDuration      metric.Float64Histogram
	fetchFailures      metric.Int64Counter
	notifications      metric.Int64Counter
	storeFailures      metric.Int64Counter
	reauthorizations   metric.Int64Counter
	breakerTransitions metric.Int64Counter
}

// NewMetrics creates the monitoring instruments on the given meter provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(instrumentationName)

	var m Metrics
	var err error

	if m.cycles, err = meter.Int64Counter("actionwatch.cycles",
		metric.WithDescription("Completed monitoring cycles."),
		metric.WithUnit("{cycle}"),
	); err != nil {
		return nil, fmt.Errorf("create cycles counter: %w", err)
	}

	if m.cycleDuration, err = meter.Float64Histogram("actionwatch.cycle.duration",
		metric.WithDescription("Wall time of a monitoring cycle."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create cycle duration histogram: %w", err)
	}

	if m.fetchFailures, err = meter.Int64Counter("actionwatch.fetch.failures",
		metric.WithDescription("Per-target run fetches that failed, by kind."),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("create fetch failures counter: %w", err)
	}

	if m.notifications, err = meter.Int64Counter("actionwatch.notifications",
		metric.WithDescription("Notifications emitted, by decision reason."),
		metric.WithUnit("{notification}"),
	); err != nil {
		return nil, fmt.Errorf("create notifications counter: %w", err)
	}

	if m.storeFailures, err = meter.Int64Counter("actionwatch.store.failures",
		metric.WithDescription("State writes that failed after a notification."),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("create store failures counter: %w", err)
	}

	if m.reauthorizations, err = meter.Int64Counter("actionwatch.reauthorizations",
		metric.WithDescription("Reauthorization attempts after a rejected credential, by outcome."),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("create reauthorizations counter: %w", err)
	}

	if m.breakerTransitions, err = meter.Int64Counter("actionwatch.breaker.transitions",
		metric.WithDescription("Per-target failure breaker state transitions."),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, fmt.Errorf("create breaker transitions counter: %w", err)
	}

	return &m, nil
}

// noopMetrics returns instruments that record nothing.
func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) recordCycle(ctx context.Context, trigger string, d time.Duration, failed bool) {
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("failed", failed),
	)
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) recordFetchFailure(ctx context.Context, kind string) {
	m.fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) recordNotification(ctx context.Context, reason DecisionReason) {
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (m *Metrics) recordStoreFailure(ctx context.Context) {
	m.storeFailures.Add(ctx, 1)
}

func (m *Metrics) recordReauthorization(ctx context.Context, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.reauthorizations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordBreakerTransition(ctx context.Context, to string) {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}
