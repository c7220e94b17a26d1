// Package metrics records practice pipeline metrics through the
// OpenTelemetry Metrics API. [InitProvider] installs a Prometheus exporter
// bridge so the instruments can be scraped from /metrics. Tests should use
// [New] with their own [metric.MeterProvider].
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/maauso/palabra"

// Metrics holds the metric instruments of the practice pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Attempts counts confirmations. Use with attribute:
	//   attribute.Bool("matched", ...)
	Attempts metric.Int64Counter

	// SegmentationDuration tracks how long one segmentation pass takes.
	SegmentationDuration metric.Float64Histogram

	// LettersKept counts letter clips accepted by the duration filter.
	LettersKept metric.Int64Counter

	// LettersDiscarded counts letter candidates dropped as too short.
	LettersDiscarded metric.Int64Counter

	// ExportFailures counts clips that could not be encoded or archived.
	// Use with attribute:
	//   attribute.String("format", ...)
	ExportFailures metric.Int64Counter
}

// segmentationBuckets are histogram boundaries in seconds. A pass over a
// few seconds of audio normally takes single-digit milliseconds.
var segmentationBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Attempts, err = m.Int64Counter("palabra.attempts",
		metric.WithDescription("Confirmed and rejected word attempts."),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}
	if met.SegmentationDuration, err = m.Float64Histogram("palabra.segmentation.duration",
		metric.WithDescription("Latency of one silence segmentation pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LettersKept, err = m.Int64Counter("palabra.letters.kept",
		metric.WithDescription("Letter clips accepted after trimming."),
		metric.WithUnit("{clip}"),
	); err != nil {
		return nil, err
	}
	if met.LettersDiscarded, err = m.Int64Counter("palabra.letters.discarded",
		metric.WithDescription("Letter candidates shorter than the minimum segment."),
		metric.WithUnit("{clip}"),
	); err != nil {
		return nil, err
	}
	if met.ExportFailures, err = m.Int64Counter("palabra.export.failures",
		metric.WithDescription("Clips that failed to encode or archive."),
		metric.WithUnit("{clip}"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordAttempt counts one confirmation.
func (m *Metrics) RecordAttempt(ctx context.Context, matched bool) {
	if m == nil {
		return
	}
	m.Attempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("matched", matched)))
}

// RecordSegmentation records one segmentation pass.
func (m *Metrics) RecordSegmentation(ctx context.Context, d time.Duration, kept, discarded int) {
	if m == nil {
		return
	}
	m.SegmentationDuration.Record(ctx, d.Seconds())
	m.LettersKept.Add(ctx, int64(kept))
	m.LettersDiscarded.Add(ctx, int64(discarded))
}

// RecordExportFailure counts one failed clip export.
func (m *Metrics) RecordExportFailure(ctx context.Context, format string) {
	if m == nil {
		return
	}
	m.ExportFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}
