// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finchat_queries_routed_total",
			Help: "Total number of queries routed, by action",
		},
		[]string{"action"},
	)

	DetectorDeclines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finchat_detector_declines_total",
			Help: "Detector matches declined on out-of-range parameters",
		},
		[]string{"detector"},
	)

	ActionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finchat_action_failures_total",
			Help: "Action executions that produced an error result",
		},
		[]string{"action"},
	)

	LLMFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finchat_llm_fallbacks_total",
			Help: "Queries no detector claimed, by fallback outcome",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "finchat_query_duration_seconds",
			Help: "End-to-end query handling duration in seconds",
		},
		[]string{"response_type"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finchat_cache_hits_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finchat_upstream_requests_total",
			Help: "Outbound market data requests, by source and status",
		},
		[]string{"source", "status"},
	)
)
