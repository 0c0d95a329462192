package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentorders/internal/core"
)

// Collector exports dispatch and cycle metrics. It implements core.OutcomeObserver and
// core.CycleObserver.
type Collector struct {
	gatherer         prometheus.Gatherer
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	cyclesTotal      *prometheus.CounterVec
	cycleSelected    prometheus.Gauge
	lastCycle        prometheus.Gauge
}

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(namespace string, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		gatherer: reg,
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Work order dispatches by provider and result",
			},
			[]string{"provider", "status", "error_kind"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of work order dispatches",
				Buckets:   []float64{.1, .5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "status"},
		),
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_cycles_total",
				Help:      "Scheduler cycles by result",
			},
			[]string{"result"},
		),
		cycleSelected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduler_last_cycle_selected",
				Help:      "Eligible work orders found by the last cycle",
			},
		),
		lastCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduler_last_cycle_timestamp_seconds",
				Help:      "Unix time the last cycle finished",
			},
		),
	}

	reg.MustRegister(
		c.dispatchesTotal,
		c.dispatchDuration,
		c.cyclesTotal,
		c.cycleSelected,
		c.lastCycle,
	)

	return c
}

func (c *Collector) ObserveOutcome(_ context.Context, o core.Outcome) {
	status := string(o.ExecutionStatus())
	c.dispatchesTotal.WithLabelValues(string(o.Provider), status, o.ErrorKind()).Inc()
	c.dispatchDuration.WithLabelValues(string(o.Provider), status).Observe(o.Duration().Seconds())
}

func (c *Collector) ObserveCycle(r core.CycleReport) {
	result := "ok"
	if r.Err != nil {
		result = "error"
	}
	c.cyclesTotal.WithLabelValues(result).Inc()
	c.cycleSelected.Set(float64(r.Selected))
	if !r.EndedAt.IsZero() {
		c.lastCycle.Set(float64(r.EndedAt.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
