package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache controller Prometheus metrics.
var (
	CacheResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegate",
			Name:      "cache_result_total",
			Help:      "Cache lookups by partition and result",
		},
		[]string{"partition", "result"}, // "hit" / "miss"
	)

	StrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegate",
			Name:      "strategy_total",
			Help:      "Gateway requests by routing rule and outcome",
		},
		[]string{"rule", "outcome"}, // "network" / "cache" / "fallback" / "error"
	)

	PreloadPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sitegate",
			Name:      "preload_pages_total",
			Help:      "Pages fetched by the popular-page preloader",
		},
	)
)

var cacheMetricsRegistered bool

// RegisterCacheMetrics registers cache Prometheus metrics. Must be called once from main.
func RegisterCacheMetrics() {
	if cacheMetricsRegistered {
		return
	}
	prometheus.MustRegister(CacheResultTotal)
	prometheus.MustRegister(StrategyTotal)
	prometheus.MustRegister(PreloadPagesTotal)
	cacheMetricsRegistered = true
}
