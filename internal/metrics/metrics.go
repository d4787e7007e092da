// Package metrics counts pipeline outcomes and exports them for the node
// exporter textfile collector.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

const namespace = "outpilot"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	Transitions   *prometheus.CounterVec
	ExternalCalls *prometheus.CounterVec
	RunDuration   prometheus.Gauge
	LastRun       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_transitions_total",
				Help:      "Ledger transitions by target state",
			},
			[]string{"state"},
		),
		ExternalCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_calls_total",
				Help:      "Calls to external dependencies by outcome",
			},
			[]string{"dependency", "outcome"},
		),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	m.registry.MustRegister(m.Transitions, m.ExternalCalls, m.RunDuration, m.LastRun)
	return m
}

func (m *Metrics) Transition(state lead.State) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(state)).Inc()
}

// ExternalCall records one call; outcome is ok, timeout or error.
func (m *Metrics) ExternalCall(dependency string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	m.ExternalCalls.WithLabelValues(dependency, outcome).Inc()
}

func (m *Metrics) RunFinished(started, finished time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.Set(finished.Sub(started).Seconds())
	m.LastRun.Set(float64(finished.Unix()))
}

// WriteTextfile atomically writes all metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
