package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onboard_rag_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_rag_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"method", "complexity"},
	)

	RateLimitRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onboard_rag_rate_limit_rejections_total",
			Help: "Queries rejected by the per-user rate limiter",
		},
	)

	FallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onboard_rag_fallback_total",
			Help: "Queries that entered the fallback chain",
		},
	)

	DegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onboard_rag_degraded_total",
			Help: "Queries answered with the canned degraded response",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"tier"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"tier"},
	)

	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_rag_cache_errors_total",
			Help: "Cache store errors swallowed as misses or no-ops",
		},
		[]string{"tier"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	ActiveConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onboard_rag_active_conversations",
			Help: "Users with a live conversation window",
		},
	)

	RetrievedSegments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onboard_rag_retrieved_segments",
			Help:    "Segments returned per retrieval after thresholding",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RateLimitRejections)
	prometheus.MustRegister(FallbackTotal)
	prometheus.MustRegister(DegradedTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheErrors)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(ActiveConversations)
	prometheus.MustRegister(RetrievedSegments)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
