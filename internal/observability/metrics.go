package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route", "status"},
	)
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_queries_total",
			Help: "Processed natural language queries by intent and outcome status.",
		},
		[]string{"intent", "status"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_query_duration_seconds",
			Help:    "End to end orchestration time per query.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"intent"},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_llm_calls_total",
			Help: "LLM completion attempts by provider and result.",
		},
		[]string{"provider", "result"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_llm_call_duration_seconds",
			Help:    "LLM completion attempt latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider"},
	)
	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_sql_executions_total",
			Help: "SQL executions by result kind (ok, query, timeout, connection, cancelled).",
		},
		[]string{"result"},
	)
	sqlExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_sql_execution_duration_seconds",
			Help:    "SQL execution latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	sqlCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_sql_corrections_total",
			Help: "Error corrector invocations by result (corrected, uncorrectable).",
		},
		[]string{"result"},
	)
	insightIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_insight_iterations",
			Help:    "Generate/execute cycles per insight query.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)
	schemaFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_schema_fetches_total",
			Help: "Schema lookups by source (memory, redis, database, error).",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		queriesTotal,
		queryDurationSeconds,
		llmCallsTotal,
		llmCallDurationSeconds,
		sqlExecutionsTotal,
		sqlExecutionDurationSeconds,
		sqlCorrectionsTotal,
		insightIterations,
		schemaFetchesTotal,
	)
}

func ObserveHTTPRequest(method, route, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

func ObserveQuery(intent, status string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(intent, status).Inc()
	queryDurationSeconds.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func ObserveLLMCall(provider, result string, elapsed time.Duration) {
	llmCallsTotal.WithLabelValues(provider, result).Inc()
	llmCallDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func ObserveSQLExecution(result string, elapsed time.Duration) {
	sqlExecutionsTotal.WithLabelValues(result).Inc()
	sqlExecutionDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementSQLCorrection(result string) {
	sqlCorrectionsTotal.WithLabelValues(result).Inc()
}

func ObserveInsightIterations(iterations int) {
	insightIterations.Observe(float64(iterations))
}

func IncrementSchemaFetch(source string) {
	schemaFetchesTotal.WithLabelValues(source).Inc()
}
