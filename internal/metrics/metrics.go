package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientdrop_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clientdrop_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	uploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clientdrop_uploaded_bytes_total",
		Help: "Bytes accepted by successful uploads.",
	})

	fileOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientdrop_file_operations_total",
		Help: "File operations by kind and outcome.",
	}, []string{"op", "result"})

	tokenRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientdrop_token_rejections_total",
		Help: "Rejected credentials by kind and reason.",
	}, []string{"kind", "reason"})

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, uploadedBytes, fileOperations, tokenRejections)
	})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// ObserveUpload counts the bytes of a stored upload.
func ObserveUpload(size int64) {
	if size > 0 {
		uploadedBytes.Add(float64(size))
	}
}

// FileOperation counts one file operation outcome ("ok" or an error class).
func FileOperation(op, result string) {
	fileOperations.WithLabelValues(op, result).Inc()
}

// TokenRejected counts a rejected credential of kind ("session", "capability").
func TokenRejected(kind, reason string) {
	tokenRejections.WithLabelValues(kind, reason).Inc()
}
