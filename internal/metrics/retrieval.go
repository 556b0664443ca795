package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lookbook",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"modality", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lookbook",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"modality", "model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lookbook",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"modality", "model", "error_type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lookbook",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	PlannerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lookbook",
			Name:      "planner_requests_total",
			Help:      "Total number of query planner requests",
		},
		[]string{"model", "status"},
	)

	PlannerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lookbook",
			Name:      "planner_request_duration_seconds",
			Help:      "Planner request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lookbook",
			Name:      "search_request_duration_seconds",
			Help:      "Vector index search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"modality"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers Prometheus retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(PlannerRequestsTotal)
	prometheus.MustRegister(PlannerRequestDuration)
	prometheus.MustRegister(SearchRequestDuration)
	retrievalMetricsRegistered = true
}
