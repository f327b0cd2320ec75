// Package telemetry defines the pipeline-shaped OpenTelemetry instruments.
// Instruments are created against the global meter provider, so every
// recording is a no-op until observability.InitMeter installs a real one.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/watchtower-sentry/observability"
)

// Metrics holds the counters recorded by pipeline stages.
type Metrics struct {
	SamplesProcessed   metric.Int64Counter
	SamplesDropped     metric.Int64Counter
	BucketsEmitted     metric.Int64Counter
	InpaintingEpisodes metric.Int64Counter
	AlertTransitions   metric.Int64Counter
}

var (
	once sync.Once
	m    *Metrics
)

// Pipeline returns the process-wide pipeline metrics, creating the
// instruments on first use.
func Pipeline() *Metrics {
	once.Do(func() {
		meter := observability.Meter("watchtower-sentry/pipeline")
		m = &Metrics{}
		m.SamplesProcessed, _ = meter.Int64Counter("samples.processed",
			metric.WithDescription("Samples emitted by a pipeline stage"))
		m.SamplesDropped, _ = meter.Int64Counter("samples.dropped",
			metric.WithDescription("Samples dropped by a pipeline stage"))
		m.BucketsEmitted, _ = meter.Int64Counter("aggsum.buckets.emitted",
			metric.WithDescription("Aggregation buckets emitted by AggSum"))
		m.InpaintingEpisodes, _ = meter.Int64Counter("movingstat.inpainting.episodes",
			metric.WithDescription("Inpainting episodes started by MovingStat"))
		m.AlertTransitions, _ = meter.Int64Counter("alert.transitions",
			metric.WithDescription("Alert state transitions produced by the alert sink"))
	})
	return m
}

// RecordSample counts one sample flowing out of the named stage.
func (mx *Metrics) RecordSample(ctx context.Context, component string) {
	mx.SamplesProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}

// RecordDrop counts one sample discarded by the named stage.
func (mx *Metrics) RecordDrop(ctx context.Context, component string) {
	mx.SamplesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}

// RecordAlert counts one alert transition for the given level.
func (mx *Metrics) RecordAlert(ctx context.Context, level string) {
	mx.AlertTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
}
