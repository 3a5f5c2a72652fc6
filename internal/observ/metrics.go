package observ

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/lalith-99/huddle"

// Metrics holds the counters recorded by the cache and throttling layers.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	cacheStoreErrors   metric.Int64Counter
	cacheInvalidations metric.Int64Counter
	rateDecisions      metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.cacheHits, err = meter.Int64Counter("cache.hits",
		metric.WithDescription("Read-through lookups served from the store"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = meter.Int64Counter("cache.misses",
		metric.WithDescription("Read-through lookups that invoked the loader"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	if m.cacheStoreErrors, err = meter.Int64Counter("cache.store_errors",
		metric.WithDescription("Store calls that failed and were degraded"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.cacheInvalidations, err = meter.Int64Counter("cache.invalidations",
		metric.WithDescription("Keys or prefixes invalidated after a mutation"),
		metric.WithUnit("{key}"),
	); err != nil {
		return nil, err
	}
	if m.rateDecisions, err = meter.Int64Counter("ratelimit.decisions",
		metric.WithDescription("Rate limiter decisions by scope and outcome"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NoopMetrics returns Metrics backed by the noop meter.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

func familyAttr(family string) metric.AddOption {
	return metric.WithAttributes(attribute.String("family", family))
}

func (m *Metrics) CacheHit(ctx context.Context, family string) {
	if m == nil {
		return
	}
	m.cacheHits.Add(ctx, 1, familyAttr(family))
}

func (m *Metrics) CacheMiss(ctx context.Context, family string) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(ctx, 1, familyAttr(family))
}

func (m *Metrics) CacheStoreError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.cacheStoreErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) CacheInvalidated(ctx context.Context, family string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheInvalidations.Add(ctx, int64(n), familyAttr(family))
}

func (m *Metrics) RateDecision(ctx context.Context, scope string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.rateDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

// MeterProvider owns the SDK provider and the /metrics handler.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// NewPrometheusMeterProvider builds an SDK meter provider whose reader is the
// Prometheus exporter, scraped through promhttp on the default registry.
func NewPrometheusMeterProvider() (*MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &MeterProvider{
		provider: provider,
		handler:  promhttp.Handler(),
	}, nil
}

// Meter returns the service meter.
func (p *MeterProvider) Meter() metric.Meter {
	return p.provider.Meter(meterName)
}

// Handler serves the Prometheus exposition format.
func (p *MeterProvider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the provider.
func (p *MeterProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
