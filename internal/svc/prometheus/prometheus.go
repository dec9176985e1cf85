package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
)

type Options struct {
	Labels prometheus.Labels
}

func New(o Options) instance.Prometheus {
	return &Instance{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stepcord_ticks_total",
			Help:        "Scheduler ticks by kind and result",
			ConstLabels: o.Labels,
		}, []string{"kind", "result"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stepcord_fetch_failures_total",
			Help:        "Summary fetches that failed",
			ConstLabels: o.Labels,
		}, []string{"kind"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stepcord_publish_failures_total",
			Help:        "Presence publishes that failed and ended a run",
			ConstLabels: o.Labels,
		}, []string{"kind"}),
		clearFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stepcord_clear_failures_total",
			Help:        "Presence clears that failed",
			ConstLabels: o.Labels,
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stepcord_runs_total",
			Help:        "Scheduler runs that ended, by result",
			ConstLabels: o.Labels,
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "stepcord_active_sessions",
			Help:        "Presence sessions connected in the current run",
			ConstLabels: o.Labels,
		}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "stepcord_active_kind",
			Help:        "1 for the kind currently shown, idle is reported as kind=\"none\"",
			ConstLabels: o.Labels,
		}, []string{"kind"}),
	}
}

type Instance struct {
	ticks           *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	clearFailures   *prometheus.CounterVec
	runs            *prometheus.CounterVec
	sessions        prometheus.Gauge
	active          *prometheus.GaugeVec
}

func (m *Instance) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.ticks,
		m.fetchFailures,
		m.publishFailures,
		m.clearFailures,
		m.runs,
		m.sessions,
		m.active,
	)
}

func (m *Instance) Tick(k kind.Kind, result string) {
	m.ticks.WithLabelValues(k.String(), result).Inc()
}

func (m *Instance) FetchFailure(k kind.Kind) {
	m.fetchFailures.WithLabelValues(k.String()).Inc()
}

func (m *Instance) PublishFailure(k kind.Kind) {
	m.publishFailures.WithLabelValues(k.String()).Inc()
}

func (m *Instance) ClearFailure(k kind.Kind) {
	m.clearFailures.WithLabelValues(k.String()).Inc()
}

func (m *Instance) RunEnded(result string) {
	m.runs.WithLabelValues(result).Inc()
}

func (m *Instance) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

func (m *Instance) SetActive(k kind.Kind, idle bool) {
	m.active.Reset()

	if idle {
		m.active.WithLabelValues("none").Set(1)
		return
	}

	m.active.WithLabelValues(k.String()).Set(1)
}
