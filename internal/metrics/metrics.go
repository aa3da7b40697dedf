// Package metrics exposes Prometheus collectors for the extraction service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

const namespace = "receipt_extractor"

// Metrics implements extraction.Recorder and observes vision calls and HTTP
// requests. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	extractionsTotal   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	fieldsExtracted    *prometheus.CounterVec
	classifications    *prometheus.CounterVec
	visionCallsTotal   *prometheus.CounterVec
	visionDuration     *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	extractionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "extractions_total",
			Help:      "Total extractions by document kind and result source.",
		},
		[]string{"kind", "source"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind", "source"},
	)
	fieldsExtracted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "fields_extracted_total",
			Help:      "Fields returned with a non-zero confidence, by field name.",
		},
		[]string{"kind", "field"},
	)
	classifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "classifications_total",
			Help:      "Document classifications by label.",
		},
		[]string{"label"},
	)
	visionCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vision",
			Name:      "calls_total",
			Help:      "Vision model calls by provider and status.",
		},
		[]string{"provider", "status"},
	)
	visionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vision",
			Name:      "call_duration_seconds",
			Help:      "Vision model call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		extractionsTotal,
		extractionDuration,
		fieldsExtracted,
		classifications,
		visionCallsTotal,
		visionDuration,
		requestsTotal,
		requestDuration,
	)

	return &Metrics{
		registry:           registry,
		extractionsTotal:   extractionsTotal,
		extractionDuration: extractionDuration,
		fieldsExtracted:    fieldsExtracted,
		classifications:    classifications,
		visionCallsTotal:   visionCallsTotal,
		visionDuration:     visionDuration,
		requestsTotal:      requestsTotal,
		requestDuration:    requestDuration,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveClassification(docType extraction.DocumentType) {
	m.classifications.WithLabelValues(string(docType.Label)).Inc()
}

func (m *Metrics) ObserveExtraction(kind extraction.Kind, source extraction.Source, result extraction.ExtractionResult, duration time.Duration) {
	m.extractionsTotal.WithLabelValues(string(kind), string(source)).Inc()
	m.extractionDuration.WithLabelValues(string(kind), string(source)).Observe(duration.Seconds())
	for _, field := range result.Extracted() {
		m.fieldsExtracted.WithLabelValues(string(kind), field).Inc()
	}
}

// ObserveVisionCall records one outbound vision model call.
func (m *Metrics) ObserveVisionCall(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.visionCallsTotal.WithLabelValues(provider, status).Inc()
	m.visionDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRequest records one served HTTP request. path must be a route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
