// Package metrics tracks NLPipe Prometheus metrics.
//
// All metrics use the nlpipe_ prefix. Task throughput is counted at the
// API boundary; queue depths are collected lazily at scrape time by
// QueueDepthCollector so an idle server does no bookkeeping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks task throughput and HTTP latency.
type Metrics struct {
	// TasksEnqueued counts documents accepted into a queue, by module.
	TasksEnqueued *prometheus.CounterVec

	// TasksClaimed counts tasks handed to workers, by module.
	TasksClaimed *prometheus.CounterVec

	// ResultsStored counts successful task completions, by module.
	ResultsStored *prometheus.CounterVec

	// ErrorsStored counts failed task completions, by module.
	ErrorsStored *prometheus.CounterVec

	// HTTPRequestDuration tracks API latency by method, route and status.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates NLPipe metrics and registers them with reg.
// Panics if registration fails (expected during initialization only).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlpipe_tasks_enqueued_total",
				Help: "Total documents accepted into a processing queue",
			},
			[]string{"module"},
		),
		TasksClaimed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlpipe_tasks_claimed_total",
				Help: "Total tasks claimed by workers",
			},
			[]string{"module"},
		),
		ResultsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlpipe_results_stored_total",
				Help: "Total tasks finished successfully",
			},
			[]string{"module"},
		),
		ErrorsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlpipe_errors_stored_total",
				Help: "Total tasks finished with a processing error",
			},
			[]string{"module"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nlpipe_http_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(
		m.TasksEnqueued,
		m.TasksClaimed,
		m.ResultsStored,
		m.ErrorsStored,
		m.HTTPRequestDuration,
	)

	return m
}

// RecordEnqueue records a document accepted into a queue.
func (m *Metrics) RecordEnqueue(module string) {
	if m == nil {
		return
	}
	m.TasksEnqueued.WithLabelValues(module).Inc()
}

// RecordClaim records a task handed to a worker.
func (m *Metrics) RecordClaim(module string) {
	if m == nil {
		return
	}
	m.TasksClaimed.WithLabelValues(module).Inc()
}

// RecordResult records a successful task completion.
func (m *Metrics) RecordResult(module string) {
	if m == nil {
		return
	}
	m.ResultsStored.WithLabelValues(module).Inc()
}

// RecordError records a failed task completion.
func (m *Metrics) RecordError(module string) {
	if m == nil {
		return
	}
	m.ErrorsStored.WithLabelValues(module).Inc()
}

// RecordHTTPRequest records a completed API request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
}

// NullMetrics returns nil, which acts as a no-op metrics collector.
// All Metrics methods handle nil receiver gracefully.
func NullMetrics() *Metrics {
	return nil
}
