// Package metrics holds the Prometheus collectors for mel generation and the
// HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lighttts"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// generationDuration is a histogram of model generation time per chunk.
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of acoustic model generation per text chunk in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	// framesTotal counts generated mel frames.
	framesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of mel frames generated",
		},
	)

	// tokensTotal counts symbol IDs fed to the model.
	tokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total number of input symbols consumed by generation",
		},
	)

	// cleanDuration is a histogram of text cleaning time per chunk.
	cleanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clean_duration_seconds",
			Help:      "Duration of text cleaning and phonemization per chunk in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"status"},
	)

	// requestsTotal counts HTTP requests by route and response code class.
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	// requestDuration is a histogram of HTTP request latency.
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	// requestsInFlight is a gauge of requests holding a worker slot.
	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of requests currently holding a generation slot",
		},
	)

	allMetrics = []prometheus.Collector{
		generationDuration,
		framesTotal,
		tokensTotal,
		cleanDuration,
		requestsTotal,
		requestDuration,
		requestsInFlight,
	}
)

// NewRegistry returns a registry holding every lighttts collector plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	for _, c := range allMetrics {
		reg.MustRegister(c)
	}

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// RecordGeneration records one model generation call.
func RecordGeneration(status string, durationSeconds float64, tokens, frames int) {
	generationDuration.WithLabelValues(status).Observe(durationSeconds)

	if tokens > 0 {
		tokensTotal.Add(float64(tokens))
	}

	if frames > 0 {
		framesTotal.Add(float64(frames))
	}
}

// RecordClean records one cleaner pipeline run.
func RecordClean(status string, durationSeconds float64) {
	cleanDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordRequest records a finished HTTP request.
func RecordRequest(route, code string, durationSeconds float64) {
	requestsTotal.WithLabelValues(route, code).Inc()
	requestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RequestStarted marks a request as holding a generation slot.
func RequestStarted() {
	requestsInFlight.Inc()
}

// RequestFinished releases the mark set by RequestStarted.
func RequestFinished() {
	requestsInFlight.Dec()
}
