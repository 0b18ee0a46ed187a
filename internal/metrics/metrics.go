// Package metrics exposes in-process Prometheus counters and gauges for
// the captive-portal responder. Everything here lives in memory only and
// resets on restart, consistent with the no-persistence requirement that
// governs the rest of the module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the HTTP Dispatcher reports to, including
// the Client Registry's size. Construct with New and register the returned Registry at
// GET /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	ProbesTotal     *prometheus.CounterVec
	RegistryEntries prometheus.Gauge
}

// New builds a fresh collector registry, independent of the global
// prometheus.DefaultRegisterer so tests can construct as many Metrics
// instances as they like without collector-already-registered panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "captiveportal",
			Name:      "probes_total",
			Help:      "Total captive portal probes handled, by endpoint, agent family, and decision.",
		}, []string{"endpoint", "family", "decision"}),
		RegistryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "captiveportal",
			Name:      "registry_entries",
			Help:      "Current number of tracked client entries in the Client Registry.",
		}),
	}
}

// ObserveProbe records one handled probe.
func (m *Metrics) ObserveProbe(endpoint, family, decision string) {
	m.ProbesTotal.WithLabelValues(endpoint, family, decision).Inc()
}

// SetRegistrySize updates the registry_entries gauge. The HTTP Dispatcher
// calls it after each handled probe.
func (m *Metrics) SetRegistrySize(n int) {
	m.RegistryEntries.Set(float64(n))
}
