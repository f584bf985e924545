package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus instruments.
type Metrics struct {
	Submitted    prometheus.Counter
	Transitions  *prometheus.CounterVec
	Timeouts     prometheus.Counter
	PollRequests prometheus.Counter
	Running      prometheus.Gauge
	PollWaiters  prometheus.Gauge
}

// NewMetrics registers the engine's instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskhive_tasks_submitted_total",
			Help: "Tasks accepted by submit.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhive_task_transitions_total",
			Help: "State transitions applied, by destination state.",
		}, []string{"state"}),
		Timeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskhive_task_timeouts_total",
			Help: "Tasks expired by the watchdog.",
		}),
		PollRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskhive_poll_requests_total",
			Help: "Long-poll requests served.",
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskhive_tasks_running",
			Help: "Tasks currently in the running state.",
		}),
		PollWaiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskhive_poll_waiters",
			Help: "Long-poll requests currently suspended.",
		}),
	}
}
