package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "unipool", Name: "match_attempts_total", Help: "Total matching pipeline invocations"})
	MatchLatency       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "unipool", Name: "match_latency_seconds", Help: "Matching pipeline latency"})

	RerankOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "unipool", Name: "rerank_outcomes_total", Help: "AI re-rank outcomes by result"},
		[]string{"outcome"},
	)
	RerankLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "unipool", Name: "rerank_latency_seconds", Help: "AI re-rank call latency including retries"})

	AuditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "unipool", Name: "audit_dropped_total", Help: "Decision log entries dropped on queue overflow"})

	RequestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "unipool", Name: "request_transitions_total", Help: "Lifecycle transitions applied"},
		[]string{"to"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "unipool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "unipool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
