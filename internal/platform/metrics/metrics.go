// Package metrics exposes the Prometheus instrumentation for the
// terminology service: HTTP request duration and volume, the size of the
// served index snapshot, and dataset reload outcomes.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ayush_bridge"

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	indexRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_records",
			Help:      "Term records in the served index snapshot, per source system",
		},
		[]string{"system"},
	)

	indexKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_keys",
			Help:      "Distinct lookup keys in the served index snapshot",
		},
	)

	reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_reloads_total",
			Help:      "Dataset reload attempts by outcome",
		},
		[]string{"status"},
	)

	reloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_reload_duration_seconds",
			Help:      "Dataset reload duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(indexRecords)
	prometheus.MustRegister(indexKeys)
	prometheus.MustRegister(reloadsTotal)
	prometheus.MustRegister(reloadDuration)
}

// Middleware records duration and count for every request. The route
// pattern, not the raw URL, is used as the path label to keep label
// cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			path := c.Path()
			if path == "" {
				path = "unknown"
			}
			method := c.Request().Method
			code := strconv.Itoa(status)

			httpRequestDuration.WithLabelValues(method, path, code).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(method, path, code).Inc()

			return err
		}
	}
}

// ObserveIndex publishes the size of the index snapshot that is currently
// serving queries. Per-system record counts sum to the snapshot total.
func ObserveIndex(distinctKeys int, bySystem map[string]int) {
	indexRecords.Reset()
	for system, n := range bySystem {
		indexRecords.WithLabelValues(system).Set(float64(n))
	}
	indexKeys.Set(float64(distinctKeys))
}

// ObserveReload records one reload attempt. Status is "ok" or "error".
func ObserveReload(status string, seconds float64) {
	reloadsTotal.WithLabelValues(status).Inc()
	reloadDuration.WithLabelValues(status).Observe(seconds)
}

// Handler serves the Prometheus exposition endpoint.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
