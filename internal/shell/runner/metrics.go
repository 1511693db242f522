package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run and step outcomes.
type Metrics struct {
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// NewMetrics creates the runner metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chainhost",
				Subsystem: "runner",
				Name:      "runs_total",
				Help:      "Completed deployment runs by final status.",
			},
			[]string{"plan", "status"},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chainhost",
				Subsystem: "runner",
				Name:      "steps_total",
				Help:      "Executed plan steps by kind and result.",
			},
			[]string{"kind", "result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chainhost",
				Subsystem: "runner",
				Name:      "step_duration_seconds",
				Help:      "Plan step duration in seconds, including the wait for the receipt.",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 15, 30, 60, 120},
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.steps, m.stepDuration)
	}
	return m
}

func (m *Metrics) recordStep(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.steps.WithLabelValues(kind, result).Inc()
	m.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) recordRun(plan, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(plan, status).Inc()
}
