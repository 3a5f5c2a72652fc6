package observ

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("development", "not-a-level")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0))  // info
	assert.False(t, logger.Core().Enabled(-1)) // debug

	prod, err := NewLogger("production", "warn")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(0))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.CacheHit(ctx, "user_profile")
	m.CacheMiss(ctx, "user_profile")
	m.CacheStoreError(ctx, "get")
	m.CacheInvalidated(ctx, "channel_messages", 3)
	m.RateDecision(ctx, "user", true)
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.CacheHit(ctx, "user_profile")
	m.CacheHit(ctx, "user_profile")
	m.RateDecision(ctx, "messages", false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[metric.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["cache.hits"])
	assert.Equal(t, int64(1), totals["ratelimit.decisions"])
}
