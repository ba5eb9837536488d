// Package metrics exposes Prometheus instrumentation for resolution,
// mutations and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer     prometheus.Gatherer
	resolves     *prometheus.CounterVec
	mutations    *prometheus.CounterVec
	cascadeSize  prometheus.Histogram
	httpRequests *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		resolves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pagetree_resolve_total",
			Help: "Page requests resolved, by outcome",
		}, []string{"outcome"}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pagetree_mutations_total",
			Help: "Tree mutations by operation and error kind",
		}, []string{"op", "result"}),
		cascadeSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagetree_rename_cascade_pages",
			Help:    "Descendants rewritten per address change",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}),
		httpRequests: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pagetree_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) ObserveResolve(outcome string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(outcome).Inc()
}

// ObserveMutation counts a mutation; result is "ok" or the error kind.
func (m *Metrics) ObserveMutation(op, result string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveCascade(pages int) {
	if m == nil {
		return
	}
	m.cascadeSize.Observe(float64(pages))
}

func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
