package adapter

import "github.com/prometheus/client_golang/prometheus"

// MetricsHelper carries the loop's prometheus collectors on a registry of
// its own, so hosts decide where (or whether) to expose them.
type MetricsHelper struct {
	registry          *prometheus.Registry
	StepCounter       prometheus.Counter
	TimerFiredCounter prometheus.Counter
	IODispatchCounter prometheus.Counter
	StepDuration      prometheus.Histogram
}

func NewMetricsHelper() *MetricsHelper {
	m := &MetricsHelper{
		registry: prometheus.NewRegistry(),
		StepCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steploop_steps_total",
			Help: "Completed loop steps.",
		}),
		TimerFiredCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steploop_timers_fired_total",
			Help: "One-shot timers that reached their callback.",
		}),
		IODispatchCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steploop_io_dispatches_total",
			Help: "Readiness events routed to a host callback.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "steploop_step_duration_seconds",
			Help:    "Wall time spent inside RunOneStep.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.StepCounter, m.TimerFiredCounter, m.IODispatchCounter, m.StepDuration)
	return m
}

func (that *MetricsHelper) Registry() *prometheus.Registry {
	return that.registry
}
