// Package monitoring exposes the HTTP and storage metrics of the service and
// mounts the /metrics endpoint.
//
// Usage:
//
//	router := gin.New()
//	router.Use(monitoring.HTTPMetricsMiddleware())
//	monitoring.SetupPrometheusMetrics(router, "/metrics", version)
//
// Available Metrics:
//
// HTTP Metrics:
//   - dashbridge_http_requests_total{method, endpoint, status_code}
//   - dashbridge_http_request_duration_seconds{method, endpoint}
//   - dashbridge_active_connections
//
// Storage Metrics:
//   - dashbridge_cache_operations_total{operation, result}
//   - dashbridge_store_operations_total{operation, store, status}
//   - dashbridge_store_operation_duration_seconds{operation, store}
//
// Error Metrics:
//   - dashbridge_errors_total{type, component}
package monitoring

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashbridge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"}, // result: hit, miss, error, success
	)

	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_store_operations_total",
			Help: "Total number of job/artifact store operations",
		},
		[]string{"operation", "store", "status"},
	)

	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashbridge_store_operation_duration_seconds",
			Help:    "Job/artifact store operation duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "store"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashbridge_active_connections",
			Help: "Number of active connections",
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type", "component"}, // type: http, store, cache
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		cacheOperationsTotal,
		storeOperationsTotal,
		storeOperationDuration,
		activeConnections,
		errorsTotal,
	)
}

// SetupPrometheusMetrics mounts the metrics endpoint on the default registry.
func SetupPrometheusMetrics(router gin.IRoutes, path, version string) {
	if path == "" {
		path = "/metrics"
	}

	// Ignore AlreadyRegistered when called more than once (tests).
	_ = prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dashbridge_build_info",
		Help: "Build information for dashbridge",
		ConstLabels: prometheus.Labels{
			"version":    version,
			"go_version": runtime.Version(),
		},
	}, func() float64 { return 1 }))

	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// HTTPMetricsMiddleware collects HTTP request metrics.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		activeConnections.Inc()
		defer activeConnections.Dec()

		c.Next()

		// Prefer the route template so ids do not explode cardinality.
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = normalizeEndpoint(c.Request.URL.Path)
		}

		statusCode := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())

		if c.Writer.Status() >= 500 {
			errorsTotal.WithLabelValues("http", endpoint).Inc()
		}
	}
}

// RecordCacheOperation records cache operation metrics
func RecordCacheOperation(operation, result string) {
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
	if result == "error" {
		errorsTotal.WithLabelValues("cache", operation).Inc()
	}
}

// RecordStoreOperation records job/artifact/batch store metrics
func RecordStoreOperation(operation, store string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
		errorsTotal.WithLabelValues("store", store).Inc()
	}

	storeOperationsTotal.WithLabelValues(operation, store, status).Inc()
	storeOperationDuration.WithLabelValues(operation, store).Observe(duration.Seconds())
}

// normalizeEndpoint collapses id-like path segments for unmatched routes.
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if i > 0 && (isNumeric(part) || looksLikeUUID(part)) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func looksLikeUUID(s string) bool {
	return len(s) == 36 && strings.Count(s, "-") == 4
}
