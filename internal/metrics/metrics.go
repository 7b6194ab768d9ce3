package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for the aggregation endpoints.
// Counters are labeled by endpoint ("market", "market-overview",
// "articles").
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	StaleServes    *prometheus.CounterVec
	HardFailures   *prometheus.CounterVec
	SymbolsDropped prometheus.Counter
}

// New registers and returns the endpoint metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_cache_hits_total",
			Help: "Requests answered from a fresh cache entry",
		}, []string{"endpoint"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_cache_misses_total",
			Help: "Requests that triggered an upstream refresh",
		}, []string{"endpoint"}),
		StaleServes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_stale_serves_total",
			Help: "Requests answered from a stale cache entry after a failed refresh",
		}, []string{"endpoint"}),
		HardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_hard_failures_total",
			Help: "Requests failed with no cache entry of any age to fall back on",
		}, []string{"endpoint"}),
		SymbolsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdesk_symbols_dropped_total",
			Help: "Symbols silently dropped from a group after a per-symbol fetch failure",
		}),
	}
	reg.MustRegister(m.CacheHits, m.CacheMisses, m.StaleServes, m.HardFailures, m.SymbolsDropped)
	return m
}
