package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	candidateQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradeinsight_candidate_queries_total",
			Help: "Total number of model-generated SQL candidates inspected.",
		},
	)
	candidateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradeinsight_candidate_rejections_total",
			Help: "Candidate SQL rejections by validation reason.",
		},
		[]string{"reason"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradeinsight_query_executions_total",
			Help: "Query executions by path and outcome.",
		},
		[]string{"path", "outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gradeinsight_query_duration_seconds",
			Help:    "Grade store query latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
	llmFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradeinsight_llm_failures_total",
			Help: "Total number of failed model round-trips.",
		},
	)
	memoryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradeinsight_memory_operations_total",
			Help: "Memory store operations by kind.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		candidateQueriesTotal,
		candidateRejectionsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		llmFailuresTotal,
		memoryOperationsTotal,
	)
}

func ObserveCandidateQuery() {
	candidateQueriesTotal.Inc()
}

func ObserveCandidateRejection(reason string) {
	candidateRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveQueryExecution(path, outcome string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(path, outcome).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveLLMFailure() {
	llmFailuresTotal.Inc()
}

func ObserveMemoryOperation(op string) {
	memoryOperationsTotal.WithLabelValues(op).Inc()
}
