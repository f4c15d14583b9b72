package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/clinicpos/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// disabledProvider builds a MeterProvider with export turned off, the shape
// most clinic deployments run in.
func disabledProvider(t *testing.T) *telemetry.MeterProvider {
	t.Helper()

	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "ledger-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return mp
}

// manualMeter returns a meter backed by a manual reader so instrument
// values can be asserted without an exporter.
func manualMeter(t *testing.T) (metric.Meter, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp.Meter("ledger-test"), reader
}

func collectedMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp := disabledProvider(t)

	assert.False(t, mp.IsEnabled())

	gotCfg := mp.GetConfig()
	assert.Equal(t, "ledger-test", gotCfg.ServiceName)
	assert.False(t, gotCfg.Enabled)

	// Shutdown and flush are no-ops without a provider
	assert.NoError(t, mp.Shutdown(context.Background()))
	assert.NoError(t, mp.ForceFlush(context.Background()))
}

func TestNewMeterProvider_Enabled(t *testing.T) {
	// Needs a collector listening, so only in full runs against otel-up
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    1 * time.Second,
		ServiceName:       "ledger-test",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, mp)

	assert.True(t, mp.IsEnabled())
	require.NotNil(t, mp.Meter("ledger"))

	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestMeterProvider_MeterWhenDisabled(t *testing.T) {
	mp := disabledProvider(t)

	// Falls through to the global no-op provider, never nil
	require.NotNil(t, mp.Meter("ledger"))
}

func TestMeterProvider_ShutdownWithCancelledContext(t *testing.T) {
	mp := disabledProvider(t)

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, mp.Shutdown(cancelledCtx))
}

func TestNewMeterProvider_InvalidEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.ErrorLevel))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// The gRPC exporter connects lazily, so creation usually succeeds and
	// the failure surfaces on export
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: "invalid-host:99999",
		ExportInterval:    1 * time.Second,
		ServiceName:       "ledger-test",
	}, logger)
	if err != nil {
		t.Logf("connection error at creation: %v", err)
		return
	}
	_ = mp.Shutdown(context.Background())
}

func TestCounter(t *testing.T) {
	meter, reader := manualMeter(t)
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter,
		"ledger_moves_recorded_total", "Stock moves written to the ledger", "{move}")
	require.NoError(t, err)

	counter.Add(ctx, 5, telemetry.AttrMoveType.String("SALE_OUT"))
	counter.Inc(ctx, telemetry.AttrMoveType.String("SALE_OUT"))

	m := collectedMetric(t, reader, "ledger_moves_recorded_total")
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(6), sum.DataPoints[0].Value)
}

func TestHistogram_RecordAndDuration(t *testing.T) {
	meter, reader := manualMeter(t)
	ctx := context.Background()

	histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query duration",
		Unit:        "s",
		Boundaries:  telemetry.DBDurationBuckets,
	})
	require.NoError(t, err)

	histogram.Record(ctx, 0.002, telemetry.AttrDBOperation.String("select"))
	histogram.RecordDuration(ctx, 8*time.Millisecond, telemetry.AttrDBOperation.String("select"))

	m := collectedMetric(t, reader, "db_query_duration_seconds")
	require.NotNil(t, m)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.010, hist.DataPoints[0].Sum, 0.0001)
}

func TestHistogram_DefaultBoundaries(t *testing.T) {
	meter, _ := manualMeter(t)

	// No explicit boundaries falls back to the SDK defaults
	histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "allocation_draw_count",
		Description: "Batches drawn per allocation",
		Unit:        "{batch}",
	})
	require.NoError(t, err)
	require.NotNil(t, histogram)

	histogram.Record(context.Background(), 2)
}

func TestGauge(t *testing.T) {
	meter, reader := manualMeter(t)
	ctx := context.Background()

	gauge, err := telemetry.NewGauge(meter,
		"ledger_expiring_batches", "Batches inside the expiry warning window", "{batch}")
	require.NoError(t, err)

	gauge.Record(ctx, 10)
	gauge.Record(ctx, 7)

	m := collectedMetric(t, reader, "ledger_expiring_batches")
	require.NotNil(t, m)

	data, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, int64(7), data.DataPoints[0].Value)
}

func TestFloatGauge(t *testing.T) {
	meter, reader := manualMeter(t)
	ctx := context.Background()

	gauge, err := telemetry.NewFloatGauge(meter,
		"cache_hit_rate", "Idempotency cache hit rate", "%")
	require.NoError(t, err)

	gauge.Record(ctx, 92.5)

	m := collectedMetric(t, reader, "cache_hit_rate")
	require.NotNil(t, m)

	data, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.InDelta(t, 92.5, data.DataPoints[0].Value, 0.001)
}

func TestSharedAttributeKeys(t *testing.T) {
	// Dashboards join on these names; renaming one silently breaks panels
	assert.Equal(t, "actor_id", string(telemetry.AttrActorID))
	assert.Equal(t, "request_id", string(telemetry.AttrRequestID))
	assert.Equal(t, "http.method", string(telemetry.AttrHTTPMethod))
	assert.Equal(t, "http.status_code", string(telemetry.AttrHTTPStatusCode))
	assert.Equal(t, "http.route", string(telemetry.AttrHTTPRoute))
	assert.Equal(t, "db.operation", string(telemetry.AttrDBOperation))
	assert.Equal(t, "db.table", string(telemetry.AttrDBTable))
	assert.Equal(t, "db.pool.state", string(telemetry.AttrDBState))
	assert.Equal(t, "operation", string(telemetry.AttrOperation))
	assert.Equal(t, "move_type", string(telemetry.AttrMoveType))
	assert.Equal(t, "reject_reason", string(telemetry.AttrRejectReason))
	assert.Equal(t, "location_id", string(telemetry.AttrLocationID))
	assert.Equal(t, "product_id", string(telemetry.AttrProductID))
	assert.Equal(t, "batch_id", string(telemetry.AttrBatchID))
}

func TestBucketBoundaries(t *testing.T) {
	assert.Equal(t, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		telemetry.HTTPDurationBuckets)
	assert.Equal(t, []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		telemetry.DBDurationBuckets)
	assert.Equal(t, []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		telemetry.SmallDurationBuckets)
}
