package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kb_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"answer_mode"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kb_confidence_score",
			Help:    "Response confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	TopSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kb_top_similarity_score",
			Help:    "Cosine similarity of the best match per query",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	ResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kb_results_count",
			Help:    "Number of retrieved articles per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
	)

	GenerationFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kb_generation_fallback_total",
			Help: "Generative answers replaced by the extractive answer",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	IndexBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_index_builds_total",
			Help: "Knowledge base index builds",
		},
		[]string{"status"},
	)

	IndexBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kb_index_build_duration_seconds",
			Help:    "Time to load, embed and index the knowledge base",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	ArticlesIndexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kb_articles_indexed",
			Help: "Articles in the serving index",
		},
	)

	IndexGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kb_index_generation",
			Help: "Generation number of the serving index",
		},
	)

	RetrievalHitRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kb_retrieval_hit_rate",
			Help: "Hit rate of the last retrieval evaluation run",
		},
	)

	registerOnce sync.Once
)

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			ConfidenceScore,
			TopSimilarity,
			ResultsCount,
			GenerationFallbacks,
			CacheHits,
			CacheMisses,
			IndexBuilds,
			IndexBuildDuration,
			ArticlesIndexed,
			IndexGeneration,
			RetrievalHitRate,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
