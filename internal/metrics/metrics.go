// Package metrics exposes the prometheus counters and gauges this core
// updates as it creates/rebuilds balancers, serves cache hits, and observes
// health transitions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge this core emits.
type Metrics struct {
	BalancerCreations  *prometheus.CounterVec
	BalancerRebuilds   *prometheus.CounterVec
	ActiveBalancers    prometheus.Gauge
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	HealthTransitions  *prometheus.CounterVec
	ExecuteDuration    *prometheus.HistogramVec
	ExecuteOutcomes    *prometheus.CounterVec
}

// New registers every metric under namespace/subsystem against registerer.
func New(registerer prometheus.Registerer, namespace, subsystem string) *Metrics {
	m := &Metrics{
		BalancerCreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "balancer_creations_total",
			Help: "Balancers created, labelled by upstream name.",
		}, []string{"upstream"}),
		BalancerRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "balancer_rebuilds_total",
			Help: "Balancers rebuilt from scratch after history divergence.",
		}, []string{"upstream"}),
		ActiveBalancers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "active_balancers",
			Help: "Balancers currently registered.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_hits_total",
			Help: "Loader cache hits, labelled by cache key kind.",
		}, []string{"key_kind"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_misses_total",
			Help: "Loader cache misses, labelled by cache key kind.",
		}, []string{"key_kind"}),
		HealthTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "health_transitions_total",
			Help: "Peer health verdict flips, labelled by new status.",
		}, []string{"status"}),
		ExecuteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "execute_duration_seconds",
			Help: "execute() latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		ExecuteOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "execute_outcomes_total",
			Help: "execute() outcomes, labelled by result code.",
		}, []string{"outcome"}),
	}

	registerer.MustRegister(
		m.BalancerCreations, m.BalancerRebuilds, m.ActiveBalancers,
		m.CacheHits, m.CacheMisses, m.HealthTransitions,
		m.ExecuteDuration, m.ExecuteOutcomes,
	)
	return m
}
