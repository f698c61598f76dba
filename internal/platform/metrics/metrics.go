// Package metrics holds process-wide Prometheus metrics and the registry the
// per-module metrics register into.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// HTTP tracks request latency per route.
type HTTP struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "correspondence_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "correspondence_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveHTTP records one request. Call with the time the request started.
func (m *HTTP) ObserveHTTP(method, route string, status int, start time.Time) {
	code := strconv.Itoa(status)
	m.RequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
	m.RequestsTotal.WithLabelValues(method, route, code).Inc()
}
