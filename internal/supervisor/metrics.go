package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the supervisor's prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	sessions        prometheus.Counter
	restarts        *prometheus.CounterVec
	connectFailures prometheus.Counter
	hooks           *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessions: f.NewCounter(prometheus.CounterOpts{
			Name: "skipper_sessions_total",
			Help: "Sessions started against a node.",
		}),
		restarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skipper_restarts_total",
			Help: "Sessions ended, by recovery kind.",
		}, []string{"kind"}),
		connectFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "skipper_connect_failures_total",
			Help: "Failed connection attempts.",
		}),
		hooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skipper_hook_invocations_total",
			Help: "Hook scripts run, by hook and result.",
		}, []string{"hook", "result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skipper_notifications_total",
			Help: "Notifications sent, by result.",
		}, []string{"result"}),
	}
}

// ObserveHook counts a hook run. It matches hook.Observer.
func (m *Metrics) ObserveHook(name string, err error) {
	if m == nil {
		return
	}
	m.hooks.WithLabelValues(name, result(err)).Inc()
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) restarted(k Kind) {
	if m != nil {
		m.restarts.WithLabelValues(k.String()).Inc()
	}
}

func (m *Metrics) connectFailed() {
	if m != nil {
		m.connectFailures.Inc()
	}
}

func (m *Metrics) notified(err error) {
	if m != nil {
		m.notifications.WithLabelValues(result(err)).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
