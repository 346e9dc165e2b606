package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and generation Prometheus metrics.
var (
	IngestRowsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "ingest_rows_processed_total",
			Help:      "Total rows successfully embedded and upserted",
		},
		[]string{"collection"},
	)

	IngestRowsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "ingest_rows_failed_total",
			Help:      "Total rows skipped or failed",
		},
		[]string{"collection", "reason"},
	)

	IngestBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Name:      "ingest_batch_duration_seconds",
			Help:      "Full batch ingest duration (embed + upsert)",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"collection"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"model", "status"},
	)

	GenerationTokensStreamed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "generation_tokens_streamed_total",
			Help:      "Total tokens streamed to callers",
		},
		[]string{"model"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ingest and generation collectors. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestRowsProcessed)
	prometheus.MustRegister(IngestRowsFailed)
	prometheus.MustRegister(IngestBatchDuration)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationTokensStreamed)
	pipelineMetricsRegistered = true
}
