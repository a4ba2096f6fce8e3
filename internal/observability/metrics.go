package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "knowledge_engine"

// Retrieval and embedding Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_requests_total",
			Help:      "Total retrieval calls by engine, strategy and outcome",
		},
		[]string{"engine", "strategy", "outcome"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"engine"},
	)

	RetrievalFragments = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_fragments",
			Help:      "Number of fragments returned per retrieval",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"engine"},
	)

	StructuredErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "structured_errors_total",
			Help:      "Structured searches that failed and returned no fragments",
		},
		[]string{"intent"},
	)

	SemanticFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "semantic_fallbacks_total",
			Help:      "Semantic search fallbacks taken",
		},
		[]string{"kind"}, // exact_scan / city_empty / city_replace
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "embedding_requests_total",
			Help:      "Total embedding provider requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_total",
			Help:      "Cache hits and misses by cache name",
		},
		[]string{"cache", "result"}, // result: hit / miss
	)
)

var registerOnce sync.Once

// RegisterMetrics registers all collectors with the default registry.
// Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RetrievalRequestsTotal,
			RetrievalDuration,
			RetrievalFragments,
			StructuredErrorsTotal,
			SemanticFallbacksTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			CacheTotal,
		)
	})
}
