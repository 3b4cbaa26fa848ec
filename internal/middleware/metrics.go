package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSockets tracks the number of currently open websocket connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_active_websockets",
		Help: "Number of active websocket connections",
	})

	// RedisErrors counts Redis command failures by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_redis_errors_total",
		Help: "Total Redis command errors",
	}, []string{"command"})

	// JobExecutions counts queue job executions by kind and outcome.
	JobExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_job_executions_total",
		Help: "Total task queue job executions",
	}, []string{"kind", "outcome"})

	// BroadcastDrops counts fan-out messages dropped on slow or closed clients.
	BroadcastDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_broadcast_drops_total",
		Help: "Total broadcast messages dropped per reason",
	}, []string{"reason"})
)

var (
	promOnce     sync.Once
	promInstance *fiberprometheus.FiberPrometheus
)

// InitMetrics creates the Prometheus middleware for the given service name.
// The instance is shared: collectors may only be registered once per process.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promInstance = fiberprometheus.New(serviceName)
	})
	return promInstance
}

// MetricsMiddleware wraps the Prometheus middleware handler.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
