package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus is a Collector backed by a private Prometheus registry.
type Prometheus struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	documents         *prometheus.GaugeVec
	links             *prometheus.GaugeVec
	registry          *prometheus.Registry
}

// NewPrometheus creates a collector with its own registry.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	p := &Prometheus{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paravault_operations_total",
				Help: "Vault operations by type and status.",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paravault_operation_duration_seconds",
				Help:    "Duration of vault operations.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paravault_errors_total",
				Help: "Vault errors by operation and error kind.",
			},
			[]string{"operation", "kind"},
		),
		documents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paravault_documents",
				Help: "Indexed documents by category.",
			},
			[]string{"category"},
		),
		links: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paravault_links",
				Help: "Link graph edges by state (valid, broken).",
			},
			[]string{"state"},
		),
		registry: registry,
	}

	registry.MustRegister(p.operationsTotal, p.operationDuration, p.errorsTotal, p.documents, p.links)
	return p
}

func (p *Prometheus) RecordOperation(_ context.Context, operation, status string, d time.Duration) {
	p.operationsTotal.WithLabelValues(operation, status).Inc()
	p.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *Prometheus) RecordError(_ context.Context, operation, kind string) {
	p.errorsTotal.WithLabelValues(operation, kind).Inc()
}

func (p *Prometheus) SetDocuments(_ context.Context, category string, n int) {
	p.documents.WithLabelValues(category).Set(float64(n))
}

func (p *Prometheus) SetLinks(_ context.Context, state string, n int) {
	p.links.WithLabelValues(state).Set(float64(n))
}

// Registry returns the registry for HTTP exposure.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
