package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values. photos.Outcome and photos.Kind produce these.
const (
	OutcomeOK                 = "ok"
	OutcomeOptimisticConflict = "optimistic_conflict"
	OutcomeLeaseConflict      = "lease_conflict"
	OutcomeTransport          = "transport"
	OutcomeInvalid            = "invalid"
)

// Metrics holds the photo operation collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Operations counts photo operations by operation and outcome.
	Operations *prometheus.CounterVec
	// Duration tracks how long each operation took, store round trips included.
	Duration *prometheus.HistogramVec
	// LeaseReleaseFailures counts leases left to expire because release failed.
	LeaseReleaseFailures prometheus.Counter
}

// New registers the collectors on a fresh registry, so several instances
// can live in one process.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photostore_operations_total",
				Help: "Total number of photo operations",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photostore_operation_duration_seconds",
				Help:    "Duration of photo operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		LeaseReleaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photostore_lease_release_failures_total",
			Help: "Leases whose release failed and were left to expire",
		}),
	}
	m.registry.MustRegister(m.Operations)
	m.registry.MustRegister(m.Duration)
	m.registry.MustRegister(m.LeaseReleaseFailures)
	return m
}

func (m *Metrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLeaseReleaseFailure() {
	if m == nil {
		return
	}
	m.LeaseReleaseFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
