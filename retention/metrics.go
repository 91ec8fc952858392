package retention

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for retention sweeps.
type Metrics struct {
	// Snapshots deleted, by entity level.
	Deleted *prometheus.CounterVec

	// Wall-clock duration of full sweeps.
	SweepDuration prometheus.Histogram

	// Per-entity failures recorded during sweeps.
	SweepFailures prometheus.Counter
}

// NewMetrics registers the sweep metrics with reg (the default registry
// when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &Metrics{
		Deleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "valgarkiv_retention_deleted_total",
			Help: "Snapshots deleted by retention sweeps, by entity level",
		}, []string{"level"}),

		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "valgarkiv_retention_sweep_duration_seconds",
			Help:    "Duration of full retention sweeps",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "valgarkiv_retention_sweep_failures_total",
			Help: "Entities whose snapshots could not be deleted during a sweep",
		}),
	}
}

// AddDeleted records n deletions at a level.
func (m *Metrics) AddDeleted(level string, n int) {
	if m != nil {
		m.Deleted.WithLabelValues(level).Add(float64(n))
	}
}

// ObserveSweep records a completed sweep's duration.
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}

// AddFailures records per-entity failures from one sweep.
func (m *Metrics) AddFailures(n int) {
	if m != nil && n > 0 {
		m.SweepFailures.Add(float64(n))
	}
}
