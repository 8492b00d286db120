// Package metrics exposes the service's Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "face_registry"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	resolutions     *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	indexSize       *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		requestsTotal: createCounterVec("http_requests_total",
			"Total number of processed HTTP requests", []string{"route", "status"}),
		requestDuration: createHistogramVec("http_request_duration_seconds",
			"Duration of HTTP requests in seconds", []string{"route"}, prometheus.DefBuckets),
		resolutions: createCounterVec("face_resolutions_total",
			"Detected faces by resolution outcome", []string{"status"}),
		uploads: createCounterVec("uploads_total",
			"Image uploads by outcome", []string{"outcome"}),
		indexSize: createGaugeVec("vector_index_size",
			"Number of vectors held by in-memory indexes", []string{"index"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.resolutions,
		m.uploads,
		m.indexSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// FaceResolved counts a detection resolved as matched or new_face.
func (m *Metrics) FaceResolved(status string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(status).Inc()
}

// UploadFinished counts an upload by outcome (no_face or stored).
func (m *Metrics) UploadFinished(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// SetIndexSize reports the size of an in-memory vector index.
func (m *Metrics) SetIndexSize(index string, size int) {
	if m == nil {
		return
	}
	m.indexSize.WithLabelValues(index).Set(float64(size))
}

func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

func createGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}
