package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts reservation engine outcomes.
type Metrics struct {
	Reservations    prometheus.Counter
	Releases        prometheus.Counter
	Deductions      prometheus.Counter
	Restocks        prometheus.Counter
	IntegrityFaults prometheus.Counter
}

// NewMetrics registers the engine counters on reg. Pass a fresh
// registry in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_reservations_total",
			Help: "Successful stock reservations.",
		}),
		Releases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_releases_total",
			Help: "Successful reservation releases.",
		}),
		Deductions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_deductions_total",
			Help: "Successful stock deductions.",
		}),
		Restocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_restocks_total",
			Help: "Successful restock operations.",
		}),
		IntegrityFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_integrity_faults_total",
			Help: "Deductions aborted because stock would go negative.",
		}),
	}
	reg.MustRegister(m.Reservations, m.Releases, m.Deductions, m.Restocks, m.IntegrityFaults)
	return m
}
