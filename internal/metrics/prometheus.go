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
			Name:    "scholar_rag_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_rag_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	RetrievedChunks = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scholar_rag_retrieved_chunks",
			Help:    "Number of evidence chunks per query",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		},
		[]string{"intent"},
	)

	RedundantThesisChunks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scholar_rag_redundant_thesis_chunks",
			Help: "Thesis chunks currently marked redundant per namespace",
		},
		[]string{"namespace"},
	)

	ContractRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_rag_contract_repairs_total",
			Help: "Answers rewritten by the evidence contract enforcer",
		},
		[]string{"kind"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scholar_rag_confidence_score",
			Help:    "Response confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_rag_documents_ingested_total",
			Help: "Total documents ingested",
		},
		[]string{"source_role", "status"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RetrievedChunks)
	prometheus.MustRegister(RedundantThesisChunks)
	prometheus.MustRegister(ContractRepairs)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsIngested)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
