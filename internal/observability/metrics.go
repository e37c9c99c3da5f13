package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// monitoring agent.
type Metrics struct {
	CyclesTotal     prometheus.Counter
	CycleDuration   prometheus.Histogram
	CycleErrors     prometheus.Counter
	ActiveSessions  prometheus.Gauge
	SessionsExpired prometheus.Counter

	FetchErrors        *prometheus.CounterVec // labels: source={current,forecast,alerts}
	WarningsDetected   *prometheus.CounterVec // labels: type
	WarningsDispatched *prometheus.CounterVec // labels: type
	AlertsDispatched   *prometheus.CounterVec // labels: channel={log_file,email,push}
	DispatchErrors     *prometheus.CounterVec // labels: channel
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "cycles_total",
			Help:      "Total polling cycles executed.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_agent",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete polling cycle across all sessions.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "cycle_errors_total",
			Help:      "Loop-level failures that triggered an extended backoff.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_agent",
			Name:      "active_sessions",
			Help:      "Number of sessions currently monitored.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed because their monitoring window passed.",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "fetch_errors_total",
			Help:      "Upstream fetch failures by data source.",
		}, []string{"source"}),
		WarningsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "warnings_detected_total",
			Help:      "Candidate warnings produced by the change detector, by type.",
		}, []string{"type"}),
		WarningsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "warnings_dispatched_total",
			Help:      "Warnings recorded in alert history, by type.",
		}, []string{"type"}),
		AlertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "alerts_dispatched_total",
			Help:      "Successful channel deliveries by channel.",
		}, []string{"channel"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_agent",
			Name:      "dispatch_errors_total",
			Help:      "Failed channel deliveries by channel.",
		}, []string{"channel"}),
	}
}

// NewMetrics creates and registers all agent metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.CycleErrors,
		m.ActiveSessions,
		m.SessionsExpired,
		m.FetchErrors,
		m.WarningsDetected,
		m.WarningsDispatched,
		m.AlertsDispatched,
		m.DispatchErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry,
// avoiding "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
