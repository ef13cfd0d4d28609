// Package metrics provides Prometheus metrics for ddnsnotify.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names use the ddnsnotify_ prefix.
const (
	Namespace = "ddnsnotify"
)

// Session outcomes recorded in SessionsTotal.
const (
	OutcomeChanged    = "changed"
	OutcomeUnchanged  = "unchanged"
	OutcomeAuthFailed = "auth_failed"
	OutcomeTimeout    = "timeout"
	OutcomeBadRequest = "bad_request"
	OutcomeStorageErr = "storage_error"
	OutcomeIOError    = "io_error"
	OutcomePanic      = "panic"
)

// Post-update results recorded in PostUpdateTotal.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// BuildInfo exposes the running version.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information, always 1",
	}, []string{"version", "go_version"})

	// SessionsActive is the number of admitted, in-flight sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sessions_active",
		Help:      "Current admitted client sessions",
	})

	// SessionsTotal counts finished sessions by transport and outcome.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sessions_total",
		Help:      "Finished client sessions by transport and outcome",
	}, []string{"transport", "outcome"})

	// SessionDuration observes the time from accept to close.
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "session_duration_seconds",
		Help:      "Client session lifetime in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// AdmissionRejectedTotal counts connections closed because the ceiling was reached.
	AdmissionRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "admission_rejected_total",
		Help:      "Connections rejected at the concurrency ceiling",
	})

	// IPChangesTotal counts writes of a new persisted IP.
	IPChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ip_changes_total",
		Help:      "Persisted IP changes",
	})

	// PostUpdateTotal counts post-update actions by strategy and result.
	PostUpdateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "post_update_total",
		Help:      "Post-update actions by strategy and result",
	}, []string{"strategy", "result"})

	// PostUpdateDuration observes how long a post-update action ran.
	PostUpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "post_update_duration_seconds",
		Help:      "Post-update action duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"strategy"})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// RecordSession counts one finished session.
func RecordSession(transport, outcome string, seconds float64) {
	SessionsTotal.WithLabelValues(transport, outcome).Inc()
	SessionDuration.Observe(seconds)
}

// RecordPostUpdate counts one finished post-update action.
func RecordPostUpdate(strategy string, err error, seconds float64) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	PostUpdateTotal.WithLabelValues(strategy, result).Inc()
	PostUpdateDuration.WithLabelValues(strategy).Observe(seconds)
}
