// Package obs carries the observability surface: prometheus metrics for the
// HTTP path and the delivery pipeline.
package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slbhq/accounts/internal/queue"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_jobs_total",
			Help: "Delivery jobs by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	jobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "delivery_jobs_active",
		Help: "Jobs currently being processed.",
	})
)

var initOnce sync.Once

// Init registers the metrics in the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			jobsTotal, jobsActive)
	})
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument measures RPS, latency and in-flight count for a handler.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := metricPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// metricPath collapses the token segment of the verification link so the
// path label stays low-cardinality.
func metricPath(path string) string {
	const marker = "/verify-email/"
	if i := strings.Index(path, marker); i >= 0 && len(path) > i+len(marker) {
		return path[:i+len(marker)] + ":token"
	}
	return path
}

// statusWriter captures the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// JobMetrics feeds worker pool transitions into prometheus. Implements the
// pool's Events interface.
type JobMetrics struct{}

func (JobMetrics) JobActive(job *queue.Job) {
	jobsActive.Inc()
}

func (JobMetrics) JobCompleted(job *queue.Job) {
	jobsActive.Dec()
	jobsTotal.WithLabelValues(job.Kind, "completed").Inc()
}

func (JobMetrics) JobRetried(job *queue.Job, err error) {
	jobsActive.Dec()
	jobsTotal.WithLabelValues(job.Kind, "retried").Inc()
}

func (JobMetrics) JobParked(job *queue.Job, err error) {
	jobsActive.Dec()
	jobsTotal.WithLabelValues(job.Kind, "parked").Inc()
}
