// Package metrics содержит счётчики бота для /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FlowsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_flows_started_total",
		Help: "Flows started by users.",
	}, []string{"kind"})

	FlowsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_flows_committed_total",
		Help: "Flows committed to the records store.",
	}, []string{"kind"})

	FlowsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_flows_cancelled_total",
		Help: "Flows cancelled or abandoned before commit.",
	}, []string{"kind"})

	CommitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_commit_failures_total",
		Help: "Failed commit attempts by reason.",
	}, []string{"kind", "reason"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_validation_errors_total",
		Help: "Rejected user inputs.",
	}, []string{"kind", "step"})

	ERPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_erp_requests_total",
		Help: "Requests to the ERP by action and result.",
	}, []string{"action", "result"})

	ERPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_erp_request_duration_seconds",
		Help:    "ERP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})
)
