package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	apiRequestsTotal    *prometheus.CounterVec
	apiLatencySeconds   *prometheus.HistogramVec
	apiErrorsTotal      *prometheus.CounterVec
	consensusTotal      *prometheus.CounterVec
	modelCallFailures   *prometheus.CounterVec
	dispatchDuration    prometheus.Histogram
	reviewSubmissions   *prometheus.CounterVec
	reportNotifications *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_requests_total",
			Help: "Total number of assessment API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assessment_latency_seconds",
			Help:    "Latency distribution for assessment API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_errors_total",
			Help: "Total number of error responses returned by assessment endpoints.",
		}, []string{"method", "route", "status"})

		consensusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_consensus_total",
			Help: "Consensus verdicts by agreement category.",
		}, []string{"agreement"})

		modelCallFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_model_call_failures_total",
			Help: "Model calls recorded as failed votes.",
		}, []string{"model", "reason"})

		dispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_dispatch_duration_seconds",
			Help:    "Time from fan-out until every panel call has returned.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90, 180},
		})

		reviewSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_review_submissions_total",
			Help: "Teacher submissions by kind and outcome.",
		}, []string{"kind", "outcome"})

		reportNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_report_notifications_total",
			Help: "Report regeneration notifications by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			consensusTotal,
			modelCallFailures,
			dispatchDuration,
			reviewSubmissions,
			reportNotifications,
		)
	})
}

// APIRequests exposes the counter for assessment requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for assessment requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for assessment error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ConsensusOutcomes exposes the counter of verdicts per agreement category.
func ConsensusOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return consensusTotal
}

// ModelCallFailures exposes the counter of failed votes.
func ModelCallFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return modelCallFailures
}

// DispatchDuration exposes the fan-out duration histogram.
func DispatchDuration() prometheus.Histogram {
	RegisterMetrics()
	return dispatchDuration
}

// ReviewSubmissions exposes the counter of teacher submissions.
func ReviewSubmissions() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewSubmissions
}

// ReportNotifications exposes the counter of report regeneration signals.
func ReportNotifications() *prometheus.CounterVec {
	RegisterMetrics()
	return reportNotifications
}
