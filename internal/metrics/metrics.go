// Package metrics exposes the coordinator's counters and gauges to
// Prometheus. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "partysync"

type Metrics struct {
	Registry *prometheus.Registry

	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	clientState    *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	leaderChanges  prometheus.Counter
	matchesStarted *prometheus.CounterVec
	sessionClears  *prometheus.CounterVec
	interrupts     *prometheus.CounterVec
	paused         prometheus.Gauge
	modeCompleted  *prometheus.GaugeVec
	modeTarget     *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Coordinator ticks executed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time of one coordinator tick, including client actions.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		clientState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "client_state",
			Help: "1 for the state each client is currently in.",
		}, []string{"client", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "state_transitions_total",
			Help: "Client state transitions.",
		}, []string{"from", "to"}),
		leaderChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "leader_changes_total",
			Help: "Times a different client was detected as room leader.",
		}),
		matchesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "matches_started_total",
			Help: "Matches started by the leader.",
		}, []string{"mode"}),
		sessionClears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_clears_total",
			Help: "Session record clears.",
		}, []string{"reason"}),
		interrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "interrupts_dismissed_total",
			Help: "Popup dialogs dismissed by the watcher.",
		}, []string{"client"}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "paused",
			Help: "1 while the coordinator is paused.",
		}),
		modeCompleted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mode_completed",
			Help: "Matches completed today per mode.",
		}, []string{"mode"}),
		modeTarget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mode_target",
			Help: "Matches required today per mode.",
		}, []string{"mode"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.tickDuration, m.clientState, m.transitions, m.leaderChanges,
		m.matchesStarted, m.sessionClears, m.interrupts, m.paused,
		m.modeCompleted, m.modeTarget,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

// SetClientState marks state as the current one for the client at index.
func (m *Metrics) SetClientState(index int, state string, all []string) {
	if m == nil {
		return
	}
	client := strconv.Itoa(index)
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.clientState.WithLabelValues(client, s).Set(v)
	}
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) LeaderChanged() {
	if m == nil {
		return
	}
	m.leaderChanges.Inc()
}

func (m *Metrics) MatchStarted(mode string) {
	if m == nil {
		return
	}
	m.matchesStarted.WithLabelValues(mode).Inc()
}

func (m *Metrics) SessionCleared(reason string) {
	if m == nil {
		return
	}
	m.sessionClears.WithLabelValues(reason).Inc()
}

func (m *Metrics) InterruptDismissed(index int) {
	if m == nil {
		return
	}
	m.interrupts.WithLabelValues(strconv.Itoa(index)).Inc()
}

func (m *Metrics) SetPaused(p bool) {
	if m == nil {
		return
	}
	if p {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}

func (m *Metrics) SetModeProgress(mode string, completed, target int) {
	if m == nil {
		return
	}
	m.modeCompleted.WithLabelValues(mode).Set(float64(completed))
	m.modeTarget.WithLabelValues(mode).Set(float64(target))
}
