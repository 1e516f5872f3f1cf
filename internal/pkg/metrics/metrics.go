package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerfox",
			Name:      "webhook_results_total",
			Help:      "Webhook deliveries by provider and outcome",
		},
		[]string{"provider", "result"},
	)

	WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerfox",
			Name:      "webhook_duration_seconds",
			Help:      "Time spent handling a webhook delivery",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)

	AlertTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerfox",
			Name:      "alert_transitions_total",
			Help:      "Alert state changes by type and action",
		},
		[]string{"type", "action"},
	)

	SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerfox",
			Name:      "alert_sweep_duration_seconds",
			Help:      "Duration of alert reconciliation sweeps",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	MonitorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerfox",
			Name:      "alert_monitor_failures_total",
			Help:      "Monitored condition queries that failed during a sweep",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(WebhookResultsTotal, WebhookDuration, AlertTransitionsTotal, SweepDuration, MonitorFailuresTotal)
}

// IncWebhook counts one webhook outcome ("accepted", "duplicate", "unauthorized", ...).
func IncWebhook(provider, result string) {
	WebhookResultsTotal.WithLabelValues(provider, result).Inc()
}

func ObserveWebhook(provider string, seconds float64) {
	WebhookDuration.WithLabelValues(provider).Observe(seconds)
}

func IncAlertTransition(alertType, action string) {
	AlertTransitionsTotal.WithLabelValues(alertType, action).Inc()
}

func ObserveSweep(result string, seconds float64) {
	SweepDuration.WithLabelValues(result).Observe(seconds)
}

func IncMonitorFailure(alertType string) {
	MonitorFailuresTotal.WithLabelValues(alertType).Inc()
}
