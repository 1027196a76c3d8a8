package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache outcomes for one cache instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	hits            prometheus.Counter
	staleHits       prometheus.Counter
	misses          prometheus.Counter
	refreshFailures prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer, cacheName string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)
	labels := prometheus.Labels{"cache": cacheName}

	return &Metrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name:        "toolstracker_cache_hits_total",
			Help:        "Cache reads served fresh from memory",
			ConstLabels: labels,
		}),
		staleHits: factory.NewCounter(prometheus.CounterOpts{
			Name:        "toolstracker_cache_stale_hits_total",
			Help:        "Cache reads served stale while a background refresh ran",
			ConstLabels: labels,
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name:        "toolstracker_cache_misses_total",
			Help:        "Cache reads that required a synchronous fetch",
			ConstLabels: labels,
		}),
		refreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "toolstracker_cache_refresh_failures_total",
			Help:        "Background refreshes that failed",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) staleHit() {
	if m != nil {
		m.staleHits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) refreshFailure() {
	if m != nil {
		m.refreshFailures.Inc()
	}
}
