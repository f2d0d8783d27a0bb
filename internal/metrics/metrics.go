// Package metrics defines the Prometheus metrics exported by the scraper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Tracker metrics
	PollRequestsTotal   *prometheus.CounterVec
	PollDurationSeconds *prometheus.HistogramVec
	CSVRowsTotal        *prometheus.CounterVec
	TrackerRunning      prometheus.Gauge

	// Session recovery metrics
	RecoveryAttemptsTotal *prometheus.CounterVec

	// Gateway metrics
	HTTPErrorsTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		PollRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webreg_poll_requests_total",
				Help: "Total number of enrollment polls by term and status",
			},
			[]string{"term", "status"}, // status: success, error, empty
		),

		PollDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webreg_poll_duration_seconds",
				Help:    "Enrollment poll duration in seconds by term",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"term"},
		),

		CSVRowsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webreg_csv_rows_total",
				Help: "Total number of CSV observation rows written by term",
			},
			[]string{"term"},
		),

		TrackerRunning: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "webreg_tracker_running",
				Help: "Whether the tracker loop is actively polling (1) or idle (0)",
			},
		),

		RecoveryAttemptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webreg_recovery_attempts_total",
				Help: "Total number of session recovery attempts by stage and status",
			},
			[]string{"stage", "status"}, // stage: cookie, register; status: success, error
		),

		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webreg_http_errors_total",
				Help: "Total number of error responses returned by the gateway, by error kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordPoll records one enrollment poll with its outcome.
func (m *Metrics) RecordPoll(term, status string, seconds float64) {
	m.PollRequestsTotal.WithLabelValues(term, status).Inc()
	m.PollDurationSeconds.WithLabelValues(term).Observe(seconds)
}

// RecordCSVRows records observation rows written for a term.
func (m *Metrics) RecordCSVRows(term string, n int) {
	m.CSVRowsTotal.WithLabelValues(term).Add(float64(n))
}

// SetTrackerRunning records the tracker's running state.
func (m *Metrics) SetTrackerRunning(running bool) {
	if running {
		m.TrackerRunning.Set(1)
	} else {
		m.TrackerRunning.Set(0)
	}
}

// RecordRecoveryAttempt records one session recovery step.
func (m *Metrics) RecordRecoveryAttempt(stage, status string) {
	m.RecoveryAttemptsTotal.WithLabelValues(stage, status).Inc()
}

// RecordHTTPError records an error response by kind.
func (m *Metrics) RecordHTTPError(kind string) {
	m.HTTPErrorsTotal.WithLabelValues(kind).Inc()
}
