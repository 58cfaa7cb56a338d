package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "botmanager"

// Pass results.
const (
	ResultOK      = "ok"
	ResultAborted = "aborted"
	ResultPartial = "partial"
)

// Metrics holds the collectors updated by the reconciliation loop.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	desired   prometheus.Gauge
	live      prometheus.Gauge
	connected prometheus.Gauge

	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	openFailures *prometheus.CounterVec
	restarts     prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		desired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "desired_teams",
			Help:      "Teams present in the token registry at the last pass",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Connection handles held by the supervisor",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_connections",
			Help:      "Connection handles reporting connected",
		}),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_passes_total",
				Help:      "Reconciliation passes by result",
			},
			[]string{"result"},
		),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_pass_duration_seconds",
			Help:      "Wall time of a reconciliation pass",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		}),
		openFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "open_failures_total",
				Help:      "Failed connection opens by stage",
			},
			[]string{"stage"},
		),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Restart commands served",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.desired,
			m.live,
			m.connected,
			m.passes,
			m.passDuration,
			m.openFailures,
			m.restarts,
		)
	}
	return m
}

// ObservePass records one reconciliation pass.
func (m *Metrics) ObservePass(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
	m.passDuration.Observe(d.Seconds())
}

// SetConnections records the gauges sampled at the end of a pass.
func (m *Metrics) SetConnections(desired, live, connected int) {
	if m == nil {
		return
	}
	m.desired.Set(float64(desired))
	m.live.Set(float64(live))
	m.connected.Set(float64(connected))
}

// OpenFailed counts a failed open at the given stage.
func (m *Metrics) OpenFailed(stage string) {
	if m == nil {
		return
	}
	m.openFailures.WithLabelValues(stage).Inc()
}

// Restarted counts a served restart command.
func (m *Metrics) Restarted() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}
