package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/hueshift/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	transcodeTotal    *prometheus.CounterVec
	transcodeDuration prometheus.Histogram
	inputBytes        prometheus.Histogram
	outputBytes       prometheus.Histogram
	pixelsProcessed   prometheus.Counter
}

// Byte-size buckets from 4KiB to 64MiB.
var sizeBuckets = prometheus.ExponentialBuckets(4<<10, 4, 8)

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hueshift_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hueshift_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hueshift_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		transcodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hueshift_transcodes_total",
			Help: "Total transcode attempts by outcome.",
		}, []string{"outcome"}),
		transcodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hueshift_transcode_duration_seconds",
			Help:    "Decode, hue rotation and encode latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		inputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hueshift_transcode_input_bytes",
			Help:    "Size of uploaded images in bytes.",
			Buckets: sizeBuckets,
		}),
		outputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hueshift_transcode_output_bytes",
			Help:    "Size of returned JPEG images in bytes.",
			Buckets: sizeBuckets,
		}),
		pixelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hueshift_pixels_processed_total",
			Help: "Total pixels hue-rotated across successful transcodes.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.transcodeTotal,
		m.transcodeDuration,
		m.inputBytes,
		m.outputBytes,
		m.pixelsProcessed,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) observeTranscode(input []byte, out pipeline.Output, err error, elapsed time.Duration) {
	m.inputBytes.Observe(float64(len(input)))

	switch {
	case err == nil:
		m.transcodeTotal.WithLabelValues("ok").Inc()
		m.transcodeDuration.Observe(elapsed.Seconds())
		m.outputBytes.Observe(float64(len(out.Data)))
		m.pixelsProcessed.Add(float64(out.Pixels()))
	case errors.Is(err, pipeline.ErrImageTooLarge):
		m.transcodeTotal.WithLabelValues("too_large").Inc()
	case errors.Is(err, pipeline.ErrInvalidImage):
		m.transcodeTotal.WithLabelValues("invalid_image").Inc()
	default:
		m.transcodeTotal.WithLabelValues("error").Inc()
	}
}

func routeLabel(path string) string {
	switch path {
	case ProcessImagePath, "/healthz", "/metrics":
		return path
	default:
		return "unmatched"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
