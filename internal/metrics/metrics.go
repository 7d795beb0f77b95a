// Package metrics exposes monitor, outcome and sweep activity to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/retention"
)

const namespace = "intake"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	promoted      *prometheus.CounterVec
	tracked       *prometheus.GaugeVec
	cycleDuration *prometheus.HistogramVec
	cycleAborts   *prometheus.CounterVec
	sweepDeleted  *prometheus.CounterVec
	sweepAborts   *prometheus.CounterVec
}

var (
	_ outcome.Sink       = (*Metrics)(nil)
	_ monitor.Observer   = (*Metrics)(nil)
	_ retention.Observer = (*Metrics)(nil)
)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Items routed, by monitor and outcome kind.",
		}, []string{"monitor", "kind"}),
		promoted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_promoted_total",
			Help:      "Items that became stable and moved into the processing area.",
		}, []string{"monitor"}),
		tracked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_tracked",
			Help:      "Items waiting to become stable.",
		}, []string{"monitor"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one detect, monitor and process cycle.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 30, 60, 300},
		}, []string{"monitor"}),
		cycleAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_aborted_total",
			Help:      "Cycles cut short by a remote failure.",
		}, []string{"monitor"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Files and directories removed by retention sweeps.",
		}, []string{"sweep", "type"}),
		sweepAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_aborted_total",
			Help:      "Sweeps stopped by their budget or a delete failure.",
		}, []string{"sweep"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.outcomes, m.promoted, m.tracked, m.cycleDuration, m.cycleAborts,
		m.sweepDeleted, m.sweepAborts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Accept(_ context.Context, rec outcome.Record) error {
	m.outcomes.WithLabelValues(rec.Monitor, string(rec.Kind)).Inc()
	return nil
}

func (m *Metrics) ItemPromoted(monitorName, _ string) {
	m.promoted.WithLabelValues(monitorName).Inc()
}

func (m *Metrics) CycleCompleted(monitorName string, stats monitor.CycleStats, tracked int) {
	m.tracked.WithLabelValues(monitorName).Set(float64(tracked))
	m.cycleDuration.WithLabelValues(monitorName).Observe(stats.Duration.Seconds())
	if stats.Aborted {
		m.cycleAborts.WithLabelValues(monitorName).Inc()
	}
}

func (m *Metrics) SweepCompleted(name string, p retention.Progress) {
	m.sweepDeleted.WithLabelValues(name, "file").Add(float64(p.FilesDeleted))
	m.sweepDeleted.WithLabelValues(name, "dir").Add(float64(p.DirsDeleted))
	if p.Aborted {
		m.sweepAborts.WithLabelValues(name).Inc()
	}
}
