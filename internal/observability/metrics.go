package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the account service collectors. A nil *Metrics records nothing.
type Metrics struct {
	OperationsTotal *prometheus.CounterVec
	HashDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers the account metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_operations_total",
				Help: "Total number of account operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accounts_password_hash_seconds",
				Help:    "Time spent hashing or verifying passwords",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 4, 8},
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(m.OperationsTotal, m.HashDuration)
	return m
}

// NewRegistry returns a registry with the standard Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordOperation counts one finished operation. outcome is "ok" or an error class.
func (m *Metrics) RecordOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveHash records how long a hash or verify call took.
func (m *Metrics) ObserveHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.HashDuration.WithLabelValues(op).Observe(d.Seconds())
}
