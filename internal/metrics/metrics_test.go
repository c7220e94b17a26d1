package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := New(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	require.NotNil(t, met, "metric %q not found", name)
	sum, ok := met.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %q is not a sum", name)

	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestRecordAttempt(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAttempt(ctx, false)
	m.RecordAttempt(ctx, false)
	m.RecordAttempt(ctx, true)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, rm, "palabra.attempts", attribute.Bool("matched", false)))
	assert.Equal(t, int64(1), sumValue(t, rm, "palabra.attempts", attribute.Bool("matched", true)))
}

func TestRecordSegmentation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegmentation(ctx, 3*time.Millisecond, 4, 1)
	m.RecordSegmentation(ctx, 2*time.Millisecond, 2, 0)

	rm := collect(t, reader)
	assert.Equal(t, int64(6), sumValue(t, rm, "palabra.letters.kept"))
	assert.Equal(t, int64(1), sumValue(t, rm, "palabra.letters.discarded"))

	met := findMetric(rm, "palabra.segmentation.duration")
	require.NotNil(t, met)
	hist, ok := met.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.005, hist.DataPoints[0].Sum, 1e-9)
}

func TestRecordExportFailure(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordExportFailure(context.Background(), "mp3")

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumValue(t, rm, "palabra.export.failures", attribute.String("format", "mp3")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordAttempt(ctx, true)
		m.RecordSegmentation(ctx, time.Millisecond, 1, 1)
		m.RecordExportFailure(ctx, "wav")
	})
}
