package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	gradingJobsTotal          *prometheus.CounterVec
	gradingFilesTotal         *prometheus.CounterVec
	evaluationDurationSeconds *prometheus.HistogramVec
	webhookDeliveriesTotal    *prometheus.CounterVec
	jobsInFlight              prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_http_latency_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		gradingJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_jobs_total",
			Help: "Grading jobs by lifecycle event.",
		}, []string{"status"})

		gradingFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_files_total",
			Help: "Graded files by classification.",
		}, []string{"status"})

		evaluationDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_evaluation_duration_seconds",
			Help:    "Duration of evaluation calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}, []string{"outcome"})

		webhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"outcome"})

		jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grader_jobs_in_flight",
			Help: "Grading jobs currently being processed.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			gradingJobsTotal,
			gradingFilesTotal,
			evaluationDurationSeconds,
			webhookDeliveriesTotal,
			jobsInFlight,
		)
	})
}

// HTTPRequests exposes the counter for served requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for served requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// GradingJobs counts accepted, completed and failed jobs.
func GradingJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingJobsTotal
}

// GradingFiles counts per-file classifications.
func GradingFiles() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingFilesTotal
}

// EvaluationDuration exposes the evaluation latency histogram.
func EvaluationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationDurationSeconds
}

// WebhookDeliveries counts webhook attempts.
func WebhookDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return webhookDeliveriesTotal
}

// JobsInFlight tracks running jobs.
func JobsInFlight() prometheus.Gauge {
	RegisterMetrics()
	return jobsInFlight
}
