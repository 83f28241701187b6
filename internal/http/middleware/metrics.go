// Package middleware contains the Gin middleware shared by every service
// engine and the gateway.
//
// This file exposes the Prometheus HTTP collectors. Labels are kept bounded:
//
//   - service: the engine name (user, post, comment, attach, gateway)
//   - method:  HTTP verb
//   - path:    the registered Gin route, e.g. /api/v1/posts/:id/like; requests
//     that matched no route are grouped under "unmatched"
//   - status:  numeric status code as a string
//
// The domain collectors (counter adjustments, remote calls) live in
// internal/observability and share the same /metrics endpoint.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath replaces raw URLs of unrouted requests, which would
// otherwise give every probed path its own series.
const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
		[]string{"service"},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 5 << 10, 25 << 10, 100 << 10,
				500 << 10, 1 << 20, 5 << 20, 20 << 20, // attachments go up to MAX_UPLOAD_BYTES
			},
		},
		[]string{"service", "method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize)
}

// Metrics instruments every request of the engine named service.
func Metrics(service string) gin.HandlerFunc {
	inflight := httpInflight.WithLabelValues(service)
	return func(c *gin.Context) {
		start := time.Now()
		inflight.Inc()
		defer inflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(service, method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(service, method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(service, method, path).Observe(float64(size))
		}
	}
}
