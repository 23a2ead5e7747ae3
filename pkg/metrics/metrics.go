package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RouterEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_total",
			Help: "Total number of events accepted or rejected by the router (count)",
		},
		[]string{"status"},
	)

	RouteDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_route_dispatch_total",
			Help: "Total number of handler invocations per route (count)",
		},
		[]string{"route", "status"},
	)

	RouteHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_handler_duration_ms",
			Help:    "Duration of route handler invocations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"route"},
	)

	RouterRetriesScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_retries_scheduled_total",
			Help: "Total number of retries scheduled after a failed attempt (count)",
		},
		[]string{"outcome"},
	)

	RouterQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_queue_size",
			Help: "Current number of events waiting in the router queue (count)",
		},
	)

	RouterQueueWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "router_queue_wait_duration_ms",
			Help:    "Duration events wait in queue past their ready time in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)

	RouterActiveRoutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_active_routes",
			Help: "Number of registered routes (count)",
		},
	)

	RouterWorkersAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_workers_alive",
			Help: "Number of running router workers (count)",
		},
	)

	AdmissionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_requests_total",
			Help: "Total number of admission checks per endpoint (count)",
		},
		[]string{"endpoint", "result"},
	)

	AdmissionBlockedKeys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admission_blocked_keys",
			Help: "Number of currently blocked keys per endpoint (count)",
		},
		[]string{"endpoint"},
	)

	AdmissionTrackedKeys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admission_tracked_keys",
			Help: "Number of keys with request history per endpoint (count)",
		},
		[]string{"endpoint"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of management requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

var registerOnce sync.Once

// RegisterAll registers every collector with the default registry. Safe to call more than once.
func RegisterAll() {
	registerOnce.Do(func() {
		RegisterRouterMetrics()
		RegisterAdmissionMetrics()
		RegisterBrokerMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterManagementMetrics()
		RegisterDatabaseMetrics()
	})
}

func RegisterRouterMetrics() {
	prometheus.MustRegister(RouterEventsTotal)
	prometheus.MustRegister(RouteDispatchTotal)
	prometheus.MustRegister(RouteHandlerDuration)
	prometheus.MustRegister(RouterRetriesScheduled)
	prometheus.MustRegister(RouterQueueSize)
	prometheus.MustRegister(RouterQueueWaitDuration)
	prometheus.MustRegister(RouterActiveRoutes)
	prometheus.MustRegister(RouterWorkersAlive)
}

func RegisterAdmissionMetrics() {
	prometheus.MustRegister(AdmissionRequestsTotal)
	prometheus.MustRegister(AdmissionBlockedKeys)
	prometheus.MustRegister(AdmissionTrackedKeys)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterDatabaseMetrics() {
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func IncRouterEvent(status string) {
	RouterEventsTotal.WithLabelValues(status).Inc()
}

func IncRouteDispatch(route, status string) {
	RouteDispatchTotal.WithLabelValues(route, status).Inc()
}

func ObserveRouteHandlerDuration(route string, duration time.Duration) {
	RouteHandlerDuration.WithLabelValues(route).Observe(float64(duration.Milliseconds()))
}

func IncRetryScheduled(outcome string) {
	RouterRetriesScheduled.WithLabelValues(outcome).Inc()
}

func SetRouterQueueSize(size int) {
	RouterQueueSize.Set(float64(size))
}

func ObserveRouterQueueWait(duration time.Duration) {
	RouterQueueWaitDuration.Observe(float64(duration.Milliseconds()))
}

func SetRouterActiveRoutes(count int) {
	RouterActiveRoutes.Set(float64(count))
}

func SetRouterWorkersAlive(count int) {
	RouterWorkersAlive.Set(float64(count))
}

func IncAdmissionRequest(endpoint, result string) {
	AdmissionRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

func SetAdmissionBlockedKeys(endpoint string, count int) {
	AdmissionBlockedKeys.WithLabelValues(endpoint).Set(float64(count))
}

func SetAdmissionTrackedKeys(endpoint string, count int) {
	AdmissionTrackedKeys.WithLabelValues(endpoint).Set(float64(count))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, strconv.Itoa(partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
