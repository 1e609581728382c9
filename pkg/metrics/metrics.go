package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Event bus metrics
	EventsPublished  *prometheus.CounterVec
	ObserverFailures *prometheus.CounterVec
	ObserverLatency  *prometheus.HistogramVec
	BusQueueDepth    prometheus.Gauge

	// Triage metrics
	PrioritiesAssigned *prometheus.CounterVec
	UseCaseFailures    *prometheus.CounterVec

	// Side effect metrics
	NotificationsSent *prometheus.CounterVec
	AuditWrites       *prometheus.CounterVec
	Escalations       prometheus.Counter

	// Realtime gateway metrics
	GatewayConnections prometheus.Gauge
	GatewayMessages    *prometheus.CounterVec
	GatewayDropped     prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics on the default registry
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewNop returns metrics bound to a throwaway registry, for tests and tools.
func NewNop() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry(), "", "")
}

// NewWithRegistry creates metrics registered on reg
func NewWithRegistry(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "domain_events_published_total",
			Help:      "Total number of domain events published on the bus",
		}, []string{"event_type"}),
		ObserverFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "observer_failures_total",
			Help:      "Total number of observer errors and recovered panics",
		}, []string{"observer", "event_type", "kind"}),
		ObserverLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "observer_duration_seconds",
			Help:      "Time spent inside a single observer update",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"observer"}),
		BusQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bus_queue_depth",
			Help:      "Events waiting for dispatch",
		}),

		PrioritiesAssigned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "priorities_assigned_total",
			Help:      "Priorities assigned by the engine or by staff override",
		}, []string{"priority", "source"}),
		UseCaseFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "use_case_failures_total",
			Help:      "Failed use case executions by operation and error code",
		}, []string{"operation", "code"}),

		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_total",
			Help:      "Staff notifications by channel and status",
		}, []string{"channel", "status"}),
		AuditWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_writes_total",
			Help:      "Audit log writes by status",
		}, []string{"status"}),
		Escalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "escalations_total",
			Help:      "Re-alerts sent for critical patients still unassigned",
		}),

		GatewayConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gateway_connections",
			Help:      "Currently connected realtime clients",
		}),
		GatewayMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gateway_messages_total",
			Help:      "Realtime messages by direction and type",
		}, []string{"direction", "type"}),
		GatewayDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gateway_dropped_clients_total",
			Help:      "Clients disconnected because their send buffer was full",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
