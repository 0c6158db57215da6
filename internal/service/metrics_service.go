package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// matching workflow.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsCreated   prometheus.Counter
	requestsExpired   prometheus.Counter
	applications      prometheus.Counter
	matchesCompleted  prometheus.Counter
	enrollments       prometheus.Counter
	withdrawals       prometheus.Counter
	refundedAmount    prometheus.Counter
	conflictsDetected prometheus.Counter
	classesCancelled  prometheus.Counter
}

// NewMetricsService registers the workflow collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "class_requests_created_total",
		Help: "Total class requests created",
	})
	requestsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "class_requests_expired_total",
		Help: "Total class requests expired by the sweep",
	})
	applications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tutor_applications_total",
		Help: "Total tutor applications submitted",
	})
	matchesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matches_completed_total",
		Help: "Total requests matched into classes",
	})
	enrollments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_total",
		Help: "Total paid enrollments into recurring classes",
	})
	withdrawals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "withdrawals_total",
		Help: "Total enrollment withdrawals",
	})
	refundedAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refunded_amount_total",
		Help: "Total amount refunded to student wallets",
	})
	conflictsDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_conflicts_detected_total",
		Help: "Total proposals rejected by the conflict detector",
	})
	classesCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "classes_cancelled_total",
		Help: "Total classes cancelled after their last withdrawal",
	})

	registry.MustRegister(requestsCreated, requestsExpired, applications, matchesCompleted,
		enrollments, withdrawals, refundedAmount, conflictsDetected, classesCancelled)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsCreated:   requestsCreated,
		requestsExpired:   requestsExpired,
		applications:      applications,
		matchesCompleted:  matchesCompleted,
		enrollments:       enrollments,
		withdrawals:       withdrawals,
		refundedAmount:    refundedAmount,
		conflictsDetected: conflictsDetected,
		classesCancelled:  classesCancelled,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RecordRequestCreated counts a created class request.
func (m *MetricsService) RecordRequestCreated() {
	if m == nil {
		return
	}
	m.requestsCreated.Inc()
}

// RecordRequestsExpired counts requests expired by the sweep.
func (m *MetricsService) RecordRequestsExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.requestsExpired.Add(float64(count))
}

// RecordApplicationSubmitted counts a submitted application.
func (m *MetricsService) RecordApplicationSubmitted() {
	if m == nil {
		return
	}
	m.applications.Inc()
}

// RecordMatchCompleted counts a request matched into a class.
func (m *MetricsService) RecordMatchCompleted() {
	if m == nil {
		return
	}
	m.matchesCompleted.Inc()
}

// RecordEnrollment counts a paid enrollment.
func (m *MetricsService) RecordEnrollment() {
	if m == nil {
		return
	}
	m.enrollments.Inc()
}

// RecordWithdrawal counts a withdrawal and the amount refunded.
func (m *MetricsService) RecordWithdrawal(refunded int64) {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
	if refunded > 0 {
		m.refundedAmount.Add(float64(refunded))
	}
}

// RecordConflictDetected counts a rejected class proposal.
func (m *MetricsService) RecordConflictDetected() {
	if m == nil {
		return
	}
	m.conflictsDetected.Inc()
}

// RecordClassCancelled counts a class cancelled by the last
// withdrawal.
func (m *MetricsService) RecordClassCancelled() {
	if m == nil {
		return
	}
	m.classesCancelled.Inc()
}
