// Package metrics registers the service's Prometheus metrics and serves
// them over a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	AssetsReleased   prometheus.Counter
	AccessChecks     *prometheus.CounterVec
	Revocations      prometheus.Counter
	LedgerRetries    prometheus.Counter
	LedgerFailures   prometheus.Counter
	CheckAccessSecs  prometheus.Histogram
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all collectors on reg. Tests use it with a fresh
// registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AssetsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_assets_released_total",
			Help: "Total number of assets released (created or updated)",
		}),
		AccessChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_access_checks_total",
			Help: "Access decisions by outcome",
		}, []string{"outcome"}),
		Revocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_revocations_total",
			Help: "Total number of permanent revocations recorded",
		}),
		LedgerRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_ledger_retries_total",
			Help: "Transient ledger failures that were retried",
		}),
		LedgerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_ledger_failures_total",
			Help: "Ledger operations that failed after exhausting retries",
		}),
		CheckAccessSecs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrow_check_access_duration_seconds",
			Help:    "Latency of access checks including key reconstruction",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveAccessCheck records one access decision.
func (m *Metrics) ObserveAccessCheck(granted bool, elapsed time.Duration) {
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	m.AccessChecks.WithLabelValues(outcome).Inc()
	m.CheckAccessSecs.Observe(elapsed.Seconds())
}

// Server exposes /metrics on its own listener so scrapes never contend
// with API traffic.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server bound to addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
