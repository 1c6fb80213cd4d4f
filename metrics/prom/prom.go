// Package prom exports cache.Metrics signals as Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/tagcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	evicts   *prometheus.CounterVec
	sizeEnt  prometheus.Gauge
	sizeCost prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// Registration errors (e.g. duplicate names) are returned rather than panicking.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) (*Adapter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		hits:   counter("hits_total", "Cache lookups that found a live entry"),
		misses: counter("misses_total", "Cache lookups that found nothing or an expired entry"),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entries removed without an explicit delete, by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt:  gauge("size_entries", "Number of resident entries"),
		sizeCost: gauge("memory_bytes", "Estimated memory held by resident entries"),
	}
	for _, c := range []prometheus.Collector{a.hits, a.misses, a.evicts, a.sizeEnt, a.sizeCost} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	// Pre-create both label values so dashboards see zeros before the first eviction.
	a.evicts.WithLabelValues(cache.EvictCapacity.String())
	a.evicts.WithLabelValues(cache.EvictExpired.String())
	return a, nil
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates gauges for the number of entries and estimated memory.
func (a *Adapter) Size(entries int, cost int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeCost.Set(float64(cost))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
