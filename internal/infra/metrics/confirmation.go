package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		PushInitiations,
		StatusChecks,
		CheckDuration,
		SessionOutcomes,
		ActiveSessions,
	)
}

var (
	// Count of push initiations grouped by result.
	// result: ok|rejected|error|invalid
	PushInitiations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_push_initiations_total",
			Help: "Count of payment push initiations by result.",
		},
		[]string{"result"},
	)

	// Status checks grouped by trigger and resolved outcome.
	// trigger: scheduled|manual
	// outcome: completed|failed|pending|error
	StatusChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_status_checks_total",
			Help: "Count of provider status checks by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	// Latency of manual status-check handling grouped by outcome.
	CheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upgrade_manual_check_duration_seconds",
			Help:    "Duration of manual status checks in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"outcome"},
	)

	// Terminal session states.
	// state: completed|failed|cancelled
	SessionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_session_outcomes_total",
			Help: "Terminal confirmation-session states.",
		},
		[]string{"state"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upgrade_active_sessions",
			Help: "Confirmation sessions currently awaiting a verdict.",
		},
	)
)
