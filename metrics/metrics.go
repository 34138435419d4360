// Package metrics exposes the portal's Prometheus metrics and serves them on
// a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification outcomes recorded by VerificationOutcomes.
const (
	OutcomeVerified = "verified"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	ChallengesIssued     prometheus.Counter
	VerificationOutcomes *prometheus.CounterVec
	BindingsCommitted    prometheus.Counter
	StorageFailures      *prometheus.CounterVec
	EventPublishFailures prometheus.Counter
	CodesPurged          prometheus.Counter
}

// New creates the metrics on a fresh registry, so several instances can
// coexist in one process.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		ChallengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_issued_total",
			Help:      "Total number of challenge messages issued",
		}),
		VerificationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_verifications_total",
			Help:      "Signature verification attempts by outcome",
		}, []string{"outcome"}),
		BindingsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bindings_committed_total",
			Help:      "Total number of signature artifacts bound to accounts",
		}),
		StorageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Failed durable writes by operation",
		}, []string{"op"}),
		EventPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Verification events that could not be published",
		}),
		CodesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_codes_purged_total",
			Help:      "Expired email verification codes removed by cleanup",
		}),
	}

	reg.MustRegister(
		m.ChallengesIssued,
		m.VerificationOutcomes,
		m.BindingsCommitted,
		m.StorageFailures,
		m.EventPublishFailures,
		m.CodesPurged,
	)
	return m
}

// Registry returns the registry holding all metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsServer serves /metrics from a Metrics registry.
type MetricsServer struct {
	srv *http.Server
}

// NewMetricsServer builds, but does not start, the metrics listener on addr.
func NewMetricsServer(m *Metrics, addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving metrics.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the metrics listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
