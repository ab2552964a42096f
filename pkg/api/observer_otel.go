package api

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instrument names recorded by MetricsObserver.
const (
	MetricRequests        = "repolib.requests"
	MetricRequestFailures = "repolib.request.failures"
	MetricRequestDuration = "repolib.request.duration"
	MetricEntitiesEmitted = "repolib.entities.emitted"
	MetricBuffered        = "repolib.requests.buffered"
	MetricReplayed        = "repolib.requests.replayed"
)

// MetricsObserver records request lifecycle events as OpenTelemetry metrics.
type MetricsObserver struct {
	NoopObserver

	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	emitted  metric.Int64Counter
	buffered metric.Int64Counter
	replayed metric.Int64Counter
}

// NewMetricsObserver creates the instruments on meter. A nil meter records
// nothing.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("repolib")
	}

	o := &MetricsObserver{}
	var err error

	if o.requests, err = meter.Int64Counter(MetricRequests,
		metric.WithDescription("Engine requests completed, by kind, strategy and outcome."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRequests, err)
	}
	if o.failures, err = meter.Int64Counter(MetricRequestFailures,
		metric.WithDescription("Engine requests that returned an error."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRequestFailures, err)
	}
	if o.duration, err = meter.Float64Histogram(MetricRequestDuration,
		metric.WithDescription("Time from strategy selection to completion."),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRequestDuration, err)
	}
	if o.emitted, err = meter.Int64Counter(MetricEntitiesEmitted,
		metric.WithDescription("Entities published to the output stream."),
		metric.WithUnit("{entity}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricEntitiesEmitted, err)
	}
	if o.buffered, err = meter.Int64Counter(MetricBuffered,
		metric.WithDescription("Requests parked in a retry queue because admission was denied."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricBuffered, err)
	}
	if o.replayed, err = meter.Int64Counter(MetricReplayed,
		metric.WithDescription("Buffered requests replayed, by outcome."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricReplayed, err)
	}

	return o, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (o *MetricsObserver) OnRequestCompleted(ctx context.Context, req RequestInfo, s Strategy, emitted int, err error, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(req.Kind)),
		attribute.String("strategy", s.String()),
		attribute.String("outcome", outcome(err)),
	)
	o.requests.Add(ctx, 1, attrs)
	o.duration.Record(ctx, d.Seconds(), attrs)
	if emitted > 0 {
		o.emitted.Add(ctx, int64(emitted), attrs)
	}
	if err != nil {
		o.failures.Add(ctx, 1, attrs)
	}
}

func (o *MetricsObserver) OnRequestBuffered(ctx context.Context, req RequestInfo) {
	o.buffered.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(req.Kind))))
}

func (o *MetricsObserver) OnRequestReplayed(ctx context.Context, req RequestInfo, err error) {
	o.replayed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(req.Kind)),
		attribute.String("outcome", outcome(err)),
	))
}
