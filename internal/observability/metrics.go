package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/mobilenet-retail/backoffice/internal/jobs"
)

// Metrics collects the Prometheus metrics of the back office.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rowsSaved       prometheus.Counter
	batchesRejected *prometheus.CounterVec
	rateRejections  *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, business and job metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	rowsSaved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_rows_saved_total",
		Help: "Sale rows committed by bulk upserts.",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_batches_rejected_total",
		Help: "Bulk upserts rejected, by reason.",
	}, []string{"reason"})
	rateRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_rejections_total",
		Help: "Requests rejected by the per-identity rate limiter.",
	}, []string{"endpoint"})
	registry.MustRegister(requests, duration, rowsSaved, rejected, rateRejections)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		rowsSaved:       rowsSaved,
		batchesRejected: rejected,
		rateRejections:  rateRejections,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RowsSaved implements sales.Metrics.
func (m *Metrics) RowsSaved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsSaved.Add(float64(n))
}

// BatchRejected implements sales.Metrics.
func (m *Metrics) BatchRejected(reason string) {
	if m == nil {
		return
	}
	m.batchesRejected.WithLabelValues(reason).Inc()
}

// RateLimited counts a limiter rejection for endpoint.
func (m *Metrics) RateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.rateRejections.WithLabelValues(endpoint).Inc()
}

// Jobs returns the job collectors registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
