package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// collect drains the reader into resource metrics for assertions.
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

func TestInitMetrics_InstrumentsRecordThroughInstalledProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := InitMetrics()
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordsProcessed.Add(ctx, 3)
	metrics.DocumentsWritten.Add(ctx, 2)
	metrics.WriteDuration.Record(ctx, 12.5)
	RecordSkip(ctx, metrics, "marker_mismatch")

	rm := collect(t, reader)

	processed := findMetric(rm, "transfer.records.processed")
	require.NotNil(t, processed)
	processedSum, ok := processed.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, processedSum.DataPoints, 1)
	assert.Equal(t, int64(3), processedSum.DataPoints[0].Value)

	written := findMetric(rm, "transfer.documents.written")
	require.NotNil(t, written)
	writtenSum, ok := written.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, writtenSum.DataPoints, 1)
	assert.Equal(t, int64(2), writtenSum.DataPoints[0].Value)

	skipped := findMetric(rm, "transfer.records.skipped")
	require.NotNil(t, skipped)
	skippedSum, ok := skipped.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, skippedSum.DataPoints, 1)
	assert.Equal(t, int64(1), skippedSum.DataPoints[0].Value)
	reason, ok := skippedSum.DataPoints[0].Attributes.Value(attribute.Key("skip.reason"))
	require.True(t, ok)
	assert.Equal(t, "marker_mismatch", reason.AsString())

	duration := findMetric(rm, "transfer.write.duration")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestRecordSkip_NilMetricsIsNoop(t *testing.T) {
	RecordSkip(context.Background(), nil, "missing_narrative")
}

func TestSetup_InstallsTraceAndMeterProviders(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Setup(ctx, "eligibility-etl-test", "0.0.0", "localhost:4317")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, isSDKTracer := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDKTracer)
	_, isSDKMeter := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, isSDKMeter)

	// No collector is listening; the final flush failing is expected.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_ = shutdown(cancelled)
}
