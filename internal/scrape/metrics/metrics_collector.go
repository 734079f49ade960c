package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Tab sources for RecordTabAcquired
const (
	SourceNew    = "new"
	SourceReused = "reused"
)

// MetricsCollector centralizes metrics recording for the scrape service.
// All methods are no-ops on a nil collector so components can run without metrics.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector creates a collector registered on the default Prometheus registry
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

// NewMetricsCollectorWithRegistry creates a collector registered on registerer
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

// UpdatePoolStats sets the pool gauges
func (mc *MetricsCollector) UpdatePoolStats(capacity, available, idle int) {
	if mc == nil {
		return
	}
	mc.prometheus.poolCapacity.Set(float64(capacity))
	mc.prometheus.poolAvailable.Set(float64(available))
	mc.prometheus.idleTabs.Set(float64(idle))
}

// RecordTabAcquired counts a lease by where its tab came from
func (mc *MetricsCollector) RecordTabAcquired(source string) {
	if mc == nil {
		return
	}
	mc.prometheus.tabsAcquired.WithLabelValues(source).Inc()
}

// RecordBrowserRestart counts a browser process replacement
func (mc *MetricsCollector) RecordBrowserRestart() {
	if mc == nil {
		return
	}
	mc.prometheus.restarts.Inc()
}

// RecordBlockedRequest counts a request aborted by the browser blocklist
func (mc *MetricsCollector) RecordBlockedRequest() {
	if mc == nil {
		return
	}
	mc.prometheus.blocked.Inc()
}

// RecordScrape records a scrape outcome
func (mc *MetricsCollector) RecordScrape(status string) {
	if mc == nil {
		return
	}
	mc.prometheus.scrapesTotal.WithLabelValues(status).Inc()
}

// RecordScrapeDuration records scrape duration in seconds
func (mc *MetricsCollector) RecordScrapeDuration(seconds float64) {
	if mc == nil {
		return
	}
	mc.prometheus.scrapeDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(endpoint, status string) {
	if mc == nil {
		return
	}
	mc.prometheus.httpRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordError records an error returned to a client
func (mc *MetricsCollector) RecordError(code string) {
	if mc == nil {
		return
	}
	mc.prometheus.errorsTotal.WithLabelValues(code).Inc()
}

// ServeHTTP serves Prometheus metrics via HTTP
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
