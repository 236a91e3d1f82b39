package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an Observer that records step and run outcomes.
type Metrics struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "many_deploy",
				Subsystem: "pipeline",
				Name:      "steps_total",
				Help:      "Total number of provisioning steps by type and result",
			},
			[]string{"pipeline", "type", "result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "many_deploy",
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Duration of provisioning steps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"pipeline", "type"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "many_deploy",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by result",
			},
			[]string{"pipeline", "result"},
		),
	}

	for _, c := range []prometheus.Collector{m.steps, m.stepDuration, m.runs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Event(e Event) {
	switch e.Type {
	case EventStepSucceeded:
		m.steps.WithLabelValues(e.Pipeline, e.Kind, "success").Inc()
		m.stepDuration.WithLabelValues(e.Pipeline, e.Kind).Observe(e.Duration.Seconds())
	case EventStepFailed:
		m.steps.WithLabelValues(e.Pipeline, e.Kind, "error").Inc()
		m.stepDuration.WithLabelValues(e.Pipeline, e.Kind).Observe(e.Duration.Seconds())
	case EventRunCompleted:
		m.runs.WithLabelValues(e.Pipeline, "completed").Inc()
	case EventRunAborted:
		m.runs.WithLabelValues(e.Pipeline, "aborted").Inc()
	}
}
