package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the gateway cache layer.
type Metrics struct {
	CacheHits               prometheus.Counter
	CacheMisses             prometheus.Counter
	NetworkRequests         prometheus.Counter
	BackgroundRevalidations prometheus.Counter
	ResponseSeconds         prometheus.Counter
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_cache_hits_total",
		Help: "Total requests served from a cache partition",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_cache_misses_total",
		Help: "Total cache lookups that found no entry",
	})

	networkRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_network_requests_total",
		Help: "Total serving fetches that reached the network",
	})

	backgroundRevalidations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_background_revalidations_total",
		Help: "Total stale-while-revalidate background fetch attempts",
	})

	responseSeconds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_response_seconds_total",
		Help: "Cumulative response time across serving outcomes",
	})

	reg.MustRegister(cacheHits, cacheMisses, networkRequests, backgroundRevalidations, responseSeconds)

	return &Metrics{
		CacheHits:               cacheHits,
		CacheMisses:             cacheMisses,
		NetworkRequests:         networkRequests,
		BackgroundRevalidations: backgroundRevalidations,
		ResponseSeconds:         responseSeconds,
	}
}
