// Package otel exports cache.Metrics signals through an OpenTelemetry meter.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/IvanBrykalov/tagcache/cache"
)

// Instrument names.
const (
	metricNameHits      = "tagcache.hits"
	metricNameMisses    = "tagcache.misses"
	metricNameEvictions = "tagcache.evictions"
	metricNameEntries   = "tagcache.entries"
	metricNameMemory    = "tagcache.memory"
)

// Adapter implements cache.Metrics on OpenTelemetry instruments.
// Every data point carries the attributes given to New.
type Adapter struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	entries   metric.Int64Gauge
	memory    metric.Int64Gauge

	attrs   metric.MeasurementOption
	reasons map[cache.EvictReason]metric.MeasurementOption
}

// New creates the instruments on a meter named "tagcache" from provider.
func New(provider metric.MeterProvider, attrs ...attribute.KeyValue) (*Adapter, error) {
	meter := provider.Meter("github.com/IvanBrykalov/tagcache")

	hits, err := meter.Int64Counter(metricNameHits,
		metric.WithDescription("Cache lookups that found a live entry"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter(metricNameMisses,
		metric.WithDescription("Cache lookups that found nothing or an expired entry"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter(metricNameEvictions,
		metric.WithDescription("Entries removed without an explicit delete"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return nil, err
	}
	entries, err := meter.Int64Gauge(metricNameEntries,
		metric.WithDescription("Number of resident entries"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return nil, err
	}
	memory, err := meter.Int64Gauge(metricNameMemory,
		metric.WithDescription("Estimated memory held by resident entries"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		hits:      hits,
		misses:    misses,
		evictions: evictions,
		entries:   entries,
		memory:    memory,
		attrs:     metric.WithAttributes(attrs...),
		reasons:   make(map[cache.EvictReason]metric.MeasurementOption, 2),
	}
	for _, r := range []cache.EvictReason{cache.EvictCapacity, cache.EvictExpired} {
		withReason := append(append([]attribute.KeyValue(nil), attrs...), attribute.String("reason", r.String()))
		a.reasons[r] = metric.WithAttributes(withReason...)
	}
	return a, nil
}

// Hit adds one to the hit counter.
func (a *Adapter) Hit() { a.hits.Add(context.Background(), 1, a.attrs) }

// Miss adds one to the miss counter.
func (a *Adapter) Miss() { a.misses.Add(context.Background(), 1, a.attrs) }

// Evict adds one to the eviction counter for reason r.
func (a *Adapter) Evict(r cache.EvictReason) {
	opt, ok := a.reasons[r]
	if !ok {
		opt = a.attrs
	}
	a.evictions.Add(context.Background(), 1, opt)
}

// Size records the current entry count and memory estimate.
func (a *Adapter) Size(entries int, cost int64) {
	ctx := context.Background()
	a.entries.Record(ctx, int64(entries), a.attrs)
	a.memory.Record(ctx, cost, a.attrs)
}

var _ cache.Metrics = (*Adapter)(nil)
