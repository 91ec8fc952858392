package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ingest path.
type Metrics struct {
	// Ingest calls by outcome: written, unchanged, rejected, error.
	Ingests *prometheus.CounterVec
}

// NewMetrics registers the archive metrics with reg (the default
// registry when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &Metrics{
		Ingests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "valgarkiv_ingests_total",
			Help: "Ingest calls by outcome",
		}, []string{"outcome"}),
	}
}

// IncIngest records one ingest outcome.
func (m *Metrics) IncIngest(outcome string) {
	if m != nil {
		m.Ingests.WithLabelValues(outcome).Inc()
	}
}
