package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/samirrijal/shoptrip/internal/core/domain"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoptrip",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shoptrip",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shoptrip",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Routing
	RouteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoptrip",
		Subsystem: "routing",
		Name:      "requests_total",
		Help:      "Route requests by shape and outcome",
	}, []string{"shape", "outcome"})

	RouteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shoptrip",
		Subsystem: "routing",
		Name:      "request_duration_seconds",
		Help:      "Duration of route requests as seen by callers",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"shape"})

	RouteShared = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoptrip",
		Subsystem: "routing",
		Name:      "shared_total",
		Help:      "Route requests answered by an identical in-flight request",
	}, []string{"shape"})

	// Trip planner
	TripMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoptrip",
		Subsystem: "trip",
		Name:      "mutations_total",
		Help:      "Trip mutations by operation",
	}, []string{"op"})

	TripRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoptrip",
		Subsystem: "trip",
		Name:      "rejections_total",
		Help:      "Rejected trip operations by error kind",
	}, []string{"kind"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoptrip",
		Subsystem: "trip",
		Name:      "active_sessions",
		Help:      "Trip sessions held in memory",
	})

	// Durable storage
	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shoptrip",
		Subsystem: "storage",
		Name:      "errors_total",
		Help:      "Swallowed trip storage failures",
	}, []string{"op", "code"})

	// Location catalog
	CatalogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoptrip",
		Subsystem: "catalog",
		Name:      "locations",
		Help:      "Locations in the loaded pool",
	})

	CatalogReloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shoptrip",
		Subsystem: "catalog",
		Name:      "reloads_total",
		Help:      "Location pool invalidations",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoptrip",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoptrip",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoptrip",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shoptrip",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		// Route pattern, not the raw path, to keep session ids out of labels.
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics updates database pool gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}

// Recorder feeds core telemetry hooks into the Prometheus collectors.
type Recorder struct{}

func (Recorder) ObserveRoute(shape, outcome string, elapsed time.Duration) {
	RouteRequests.WithLabelValues(shape, outcome).Inc()
	RouteDuration.WithLabelValues(shape).Observe(elapsed.Seconds())
}

func (Recorder) RouteShared(shape string) {
	RouteShared.WithLabelValues(shape).Inc()
}

func (Recorder) ObserveMutation(op string) {
	TripMutations.WithLabelValues(op).Inc()
}

func (Recorder) ObserveRejection(kind domain.ErrorKind) {
	TripRejections.WithLabelValues(string(kind)).Inc()
}

// StorageError matches the trip store error hook.
func (Recorder) StorageError(op string, err *domain.TripError) {
	StorageErrors.WithLabelValues(op, err.Code).Inc()
}
