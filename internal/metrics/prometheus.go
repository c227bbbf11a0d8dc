package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatemail_batch_duration_seconds",
			Help:    "Batch analysis duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)

	BatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatemail_batch_total",
			Help: "Total number of batch runs",
		},
		[]string{"status"},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatemail_batch_size",
			Help:    "Number of emails per batch",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 200},
		},
	)

	EnrichmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatemail_enrichment_total",
			Help: "Per-email analysis results by source",
		},
		[]string{"source"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatemail_llm_request_duration_seconds",
			Help:    "Reasoning service request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatemail_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatemail_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatemail_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"collection"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatemail_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"collection"},
	)

	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatemail_cache_errors_total",
			Help: "Local store failures absorbed by the cache layer",
		},
		[]string{"collection", "op"},
	)

	EmailsFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatemail_emails_fetched_total",
			Help: "Total emails fetched from the mailbox",
		},
	)

	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatemail_exports_total",
			Help: "Total report exports",
		},
		[]string{"format", "status"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BatchDuration,
			BatchTotal,
			BatchSize,
			EnrichmentTotal,
			LLMRequestDuration,
			LLMTokensUsed,
			CircuitState,
			CacheHits,
			CacheMisses,
			CacheErrors,
			EmailsFetched,
			ExportsTotal,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
