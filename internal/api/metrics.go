package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type activeCounter interface {
	ActiveTransforms() int64
}

type metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	resultsTotal    *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	sourceBytes     prometheus.Counter
	outputBytes     prometheus.Counter
}

func newMetrics(active activeCounter) *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_http_requests_total",
			Help: "Total HTTP requests handled by the proxy.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelproxy_http_request_duration_seconds",
			Help:    "Proxy request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		resultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_pipeline_results_total",
			Help: "Pipeline outcomes by route intent: transformed, passthrough or an error kind.",
		}, []string{"intent", "outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelproxy_upstream_fetch_duration_seconds",
			Help:    "Latency of successful upstream image fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		sourceBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_source_bytes_total",
			Help: "Total bytes fetched from upstream origins.",
		}),
		outputBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_output_bytes_total",
			Help: "Total image bytes sent to clients.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.resultsTotal,
		m.fetchDuration,
		m.sourceBytes,
		m.outputBytes,
	)
	if active != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pixelproxy_active_transforms",
			Help: "Decode/resize/encode runs currently holding a transform slot.",
		}, func() float64 {
			return float64(active.ActiveTransforms())
		}))
	}
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// withHTTPMetrics runs inside the chi router so the matched route pattern is
// known once the handler returns.
func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) observeResult(intent pipeline.Intent, result pipeline.Result) {
	outcome := "transformed"
	if result.Passthrough {
		outcome = "passthrough"
	}
	m.resultsTotal.WithLabelValues(intent.String(), outcome).Inc()
	m.fetchDuration.Observe(result.FetchDuration.Seconds())
	m.sourceBytes.Add(float64(result.SourceBytes))
	m.outputBytes.Add(float64(len(result.Body)))
}

func (m *metrics) observeFailure(intent pipeline.Intent, kind pipeline.Kind) {
	m.resultsTotal.WithLabelValues(intent.String(), string(kind)).Inc()
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel keeps label cardinality bounded: the embedded remote URL never
// becomes part of a label.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	switch rctx.RoutePattern() {
	case routeWebPSized:
		return "/webp/{size}/{url}"
	case routeWebP:
		return "/webp/{url}"
	case routeResizeAlias:
		return "/resize/{size}/{url}"
	case routeSized:
		return "/{size}/{url}"
	case routePlain:
		return "/{url}"
	case "/healthz":
		return "/healthz"
	case "/metrics":
		return "/metrics"
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
