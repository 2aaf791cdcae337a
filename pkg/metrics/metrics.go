package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConfirmationJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confirmation_jobs_total",
			Help: "Total number of confirmation jobs by terminal status (count)",
		},
		[]string{"status"},
	)

	ConfirmationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confirmation_attempts_total",
			Help: "Total number of confirmation delivery attempts (count)",
		},
		[]string{"outcome"},
	)

	ConfirmationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "confirmation_queue_depth",
			Help: "Current depth of the confirmation job queue (count)",
		},
	)

	ConfirmationDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confirmation_delivery_duration_ms",
			Help:    "Duration of confirmation delivery attempts in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"outcome"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification deliveries by outcome (count)",
		},
		[]string{"type", "outcome"},
	)

	NotificationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Current depth of the notification main queue (count)",
		},
	)

	NotificationFailedDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_failed_depth",
			Help: "Current size of the notification failed-retry list (count)",
		},
	)

	MonitorEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_evaluations_total",
			Help: "Total number of pending payments evaluated by the monitor (count)",
		},
		[]string{"result"},
	)

	MonitorFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_fetch_duration_ms",
			Help:    "Duration of pending-payment fetches in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Total number of payment verifications by method and outcome (count)",
		},
		[]string{"method", "outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked by the rate limiter (count)",
		},
		[]string{"allowed"},
	)

	AuditRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit records written by sink and status (count)",
		},
		[]string{"sink", "status"},
	)
)

func RegisterConfirmationMetrics() {
	prometheus.MustRegister(ConfirmationJobsTotal)
	prometheus.MustRegister(ConfirmationAttemptsTotal)
	prometheus.MustRegister(ConfirmationQueueDepth)
	prometheus.MustRegister(ConfirmationDeliveryDuration)
}

func RegisterNotificationMetrics() {
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(NotificationQueueDepth)
	prometheus.MustRegister(NotificationFailedDepth)
}

func RegisterMonitorMetrics() {
	prometheus.MustRegister(MonitorEvaluationsTotal)
	prometheus.MustRegister(MonitorFetchDuration)
}

func RegisterVerificationMetrics() {
	prometheus.MustRegister(VerificationsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
}

func RegisterServerMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(AuditRecordsTotal)
}

func ObserveConfirmationDelivery(duration time.Duration, outcome string) {
	ConfirmationDeliveryDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func ObserveMonitorFetch(duration time.Duration, status string) {
	MonitorFetchDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}
