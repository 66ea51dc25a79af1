// Package metrics holds the Prometheus instruments shared by the API client,
// the export pipeline and the HTTP server.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "univers"

type Metrics struct {
	APIRequests  *prometheus.CounterVec
	APILatency   *prometheus.HistogramVec
	ChunkFetches *prometheus.CounterVec
	Exports      *prometheus.CounterVec
	ExportedRows prometheus.Counter
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Poseidon API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Poseidon API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ChunkFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_fetch_attempts_total",
			Help:      "Export chunk fetch attempts by outcome.",
		}, []string{"outcome"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Finished exports by status.",
		}, []string{"status"}),
		ExportedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_rows_total",
			Help:      "Rows produced by successful or partial exports.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	for _, c := range []prometheus.Collector{
		m.APIRequests, m.APILatency, m.ChunkFetches, m.Exports,
		m.ExportedRows, m.HTTPRequests, m.HTTPLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveAPICall(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, outcome).Inc()
	m.APILatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) ChunkAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ChunkFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ExportFinished(status string, rows int) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(status).Inc()
	m.ExportedRows.Add(float64(rows))
}

func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}
