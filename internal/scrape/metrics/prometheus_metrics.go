package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// PrometheusMetrics owns the Prometheus collectors of the scrape service
type PrometheusMetrics struct {
	// Tab pool metrics
	poolCapacity  prometheus.Gauge
	poolAvailable prometheus.Gauge
	idleTabs      prometheus.Gauge
	tabsAcquired  *prometheus.CounterVec
	restarts      prometheus.Counter
	blocked       prometheus.Counter

	// Scrape metrics
	scrapesTotal   *prometheus.CounterVec
	scrapeDuration prometheus.Histogram

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetrics registers collectors on the default registry
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry registers collectors on registerer
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.poolCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "capacity",
		Help:      "Maximum number of tabs in simultaneous use",
	})

	pm.poolAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "available_slots",
		Help:      "Number of free capacity slots",
	})

	pm.idleTabs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "idle_tabs",
		Help:      "Number of released tabs waiting for reuse",
	})

	pm.tabsAcquired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "tabs_acquired_total",
		Help:      "Tabs handed out, by source",
	}, []string{"source"}) // source: new, reused

	pm.restarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "browser_restarts_total",
		Help:      "Browser process restarts after a lost connection",
	})

	pm.blocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "browser",
		Name:      "blocked_requests_total",
		Help:      "Subresource requests aborted by the blocklist",
	})

	pm.scrapesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scrape",
		Name:      "requests_total",
		Help:      "Scrape outcomes",
	}, []string{"status"}) // status: success, timeout, browser_error, internal_error

	pm.scrapeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scrape",
		Name:      "duration_seconds",
		Help:      "Time spent scraping pages, including tab acquisition",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "Errors returned to clients by code",
	}, []string{"code"})

	registerer.MustRegister(
		pm.poolCapacity,
		pm.poolAvailable,
		pm.idleTabs,
		pm.tabsAcquired,
		pm.restarts,
		pm.blocked,
		pm.scrapesTotal,
		pm.scrapeDuration,
		pm.httpRequests,
		pm.errorsTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("Scrape service Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}

// ServeHTTP serves the registry in Prometheus text format
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
