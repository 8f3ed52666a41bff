// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's collectors. One instance per process,
// registered on a registry the server hands to promhttp.
type Metrics struct {
	Registry *prometheus.Registry

	// GateDecisions counts validation outcomes by operation and reason.
	GateDecisions *prometheus.CounterVec

	// AutoCloses counts synthesized auto-close punches persisted by the gate.
	AutoCloses prometheus.Counter

	// ScheduleFallbacks counts resolutions served from the last-good cache.
	ScheduleFallbacks prometheus.Counter

	// AggregateDuration observes full hours-recomputation latency.
	AggregateDuration prometheus.Histogram
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ojt_gate_decisions_total",
			Help: "Punch validation decisions by operation and reason code.",
		}, []string{"op", "reason"}),
		AutoCloses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ojt_auto_closes_total",
			Help: "Synthetic time-outs persisted for forgotten sessions.",
		}),
		ScheduleFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "ojt_schedule_fallbacks_total",
			Help: "Schedule resolutions served from the last-good cache.",
		}),
		AggregateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ojt_aggregate_duration_seconds",
			Help:    "Latency of full hours recomputation.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
