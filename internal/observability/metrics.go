// Package observability exposes Prometheus metrics for the gateway.
package observability

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelgate_http_requests_total",
		Help: "Total HTTP requests handled, by method, path and status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelgate_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelgate_runs_total",
		Help: "Run executions by terminal status.",
	}, []string{"status"})
)

// Middleware records request count and latency per route. The route pattern
// (not the raw URI) is used as the path label to bound cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			pattern := c.Path()
			if pattern == "" {
				pattern = "unmatched"
			}
			requestsTotal.WithLabelValues(
				c.Request().Method,
				pattern,
				strconv.Itoa(c.Response().Status),
			).Inc()
			requestDuration.WithLabelValues(c.Request().Method, pattern).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveRun counts a run reaching a terminal status.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}
