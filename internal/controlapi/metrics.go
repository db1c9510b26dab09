package controlapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the control API's Prometheus collectors. It is private to
// the package rather than a global so tests can construct isolated
// instances via newMetrics.
type metrics struct {
	registry   *prometheus.Registry
	inFlight   prometheus.Gauge
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	executions *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	m := &metrics{
		registry: registry,
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brain",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight control API requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of control API requests handled.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "brain",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of control API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Subsystem: "plans",
			Name:      "executions_total",
			Help:      "Total number of plan executions dispatched through the control API.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.inFlight,
		m.requests,
		m.duration,
		m.executions,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registered Prometheus collectors for scraping.
func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument wraps next with in-flight/latency/count collection. Requests
// to /metrics itself are passed through unrecorded to avoid the collector
// measuring its own scrape.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.inFlight.Inc()
		defer m.inFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		m.requests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// recordExecution tallies a dispatched plan execution by its terminal status
// ("success", "failure", "error").
func (m *metrics) recordExecution(status string) {
	m.executions.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters (plan names, history ids) down to
// a fixed label so per-resource cardinality doesn't leak into Prometheus.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")

	switch parts[0] {
	case "history":
		if len(parts) >= 2 {
			return "/history/:id"
		}
		return "/history"
	case "plans":
		switch {
		case len(parts) >= 4 && parts[2] == "versions":
			return "/plans/:name/versions/:version/restore"
		case len(parts) >= 3 && parts[2] == "versions":
			return "/plans/:name/versions"
		case len(parts) >= 3 && parts[2] == "diff":
			return "/plans/:name/diff"
		case len(parts) >= 2:
			return "/plans/:name"
		default:
			return "/plans"
		}
	default:
		return "/" + parts[0]
	}
}
