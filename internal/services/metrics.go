package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics for the tides layer
type Metrics struct {
	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreLatency    *prometheus.HistogramVec

	// Resolver metrics
	ResolverFallbacks *prometheus.CounterVec
	ResolverMisses    prometheus.Counter

	// Actor metrics
	ActorQueueTimeouts prometheus.Counter
	ActorMutations     *prometheus.CounterVec
	ActorListeners     prometheus.Gauge

	// Index maintenance failures swallowed after a successful document write
	IndexUpdateFailures prometheus.Counter

	registry *ActorRegistry
}

var globalMetrics *Metrics

// InitMetrics registers the metrics with reg. Pass prometheus.DefaultRegisterer
// in the server and a fresh registry in tests.
func InitMetrics(reg prometheus.Registerer, registry *ActorRegistry) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		registry: registry,

		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tides_store_operations_total",
			Help: "Object store operations by backend, operation and outcome",
		}, []string{"backend", "operation", "outcome"}), // outcome: ok, not_found, unavailable, error

		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tides_store_operation_duration_seconds",
			Help:    "Object store operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"backend", "operation"}),

		ResolverFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tides_resolver_fallbacks_total",
			Help: "Sources skipped by the resolver, by source and reason",
		}, []string{"source", "reason"}),

		ResolverMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tides_resolver_not_found_anywhere_total",
			Help: "Lookups that missed in every configured source",
		}),

		ActorQueueTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "tides_actor_queue_timeouts_total",
			Help: "Mutations rejected because the owner actor did not pick them up in time",
		}),

		ActorMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tides_actor_mutations_total",
			Help: "Mutations executed by owner actors, by operation and outcome",
		}, []string{"operation", "outcome"}),

		ActorListeners: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tides_actor_listeners_active",
			Help: "Number of live-event listeners attached to owner actors",
		}),

		IndexUpdateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tides_index_update_failures_total",
			Help: "Secondary index updates that failed after the tide document was written",
		}),
	}

	// Register a collector that reads the live actor count from the registry
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tides_actors_current",
			Help: "Current number of owner actors held by the registry",
		},
		func() float64 {
			if registry != nil {
				return float64(registry.Count())
			}
			return 0
		},
	)

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance. It is nil until InitMetrics runs
// and every recorder tolerates a nil receiver.
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordStoreOperation records one backend call
func (m *Metrics) RecordStoreOperation(backend, operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(backend, operation, outcome).Inc()
	m.StoreLatency.WithLabelValues(backend, operation).Observe(seconds)
}

// RecordResolverFallback records a source the resolver moved past
func (m *Metrics) RecordResolverFallback(source, reason string) {
	if m == nil {
		return
	}
	m.ResolverFallbacks.WithLabelValues(source, reason).Inc()
}

// RecordResolverMiss records a lookup that found nothing in any source
func (m *Metrics) RecordResolverMiss() {
	if m == nil {
		return
	}
	m.ResolverMisses.Inc()
}

// RecordActorQueueTimeout records a request abandoned in an actor inbox
func (m *Metrics) RecordActorQueueTimeout() {
	if m == nil {
		return
	}
	m.ActorQueueTimeouts.Inc()
}

// RecordActorMutation records an executed mutation
func (m *Metrics) RecordActorMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.ActorMutations.WithLabelValues(operation, outcomeOf(err)).Inc()
}

// RecordListenerAttached records a listener subscribing
func (m *Metrics) RecordListenerAttached() {
	if m == nil {
		return
	}
	m.ActorListeners.Inc()
}

// RecordListenerDetached records a listener leaving or being pruned
func (m *Metrics) RecordListenerDetached() {
	if m == nil {
		return
	}
	m.ActorListeners.Dec()
}

// RecordIndexUpdateFailure records a swallowed index write failure
func (m *Metrics) RecordIndexUpdateFailure() {
	if m == nil {
		return
	}
	m.IndexUpdateFailures.Inc()
}
