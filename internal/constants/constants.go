package constants

import "time"

const (
	ServiceName = "router-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultWorkers       = 3
	DefaultQueueCapacity = 10000
	DefaultPollInterval  = time.Second
	DefaultRetryBase     = time.Second
	DefaultRetryMax      = 300 * time.Second
)

const (
	DefaultReloadIntervalSeconds = 60
)

// Admission endpoint names used by the HTTP API and the Kafka consumer.
const (
	EndpointWebhook = "webhook"
	EndpointKafka   = "kafka"
)

const (
	DefaultRequestsPerMinute  = 60
	DefaultRequestsPerHour    = 1000
	DefaultBurstLimit         = 10
	DefaultBlockDurationSec   = 300
	DefaultLimiterCleanupSec  = 300
	DefaultAdmissionStatsTTL  = 24 * time.Hour
	DefaultAdmissionStatsPref = "admission:stats"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	HandlerTypeLog   = "log"
	HandlerTypeKafka = "kafka"
	HandlerTypeHTTP  = "http"
	HandlerTypeMongo = "mongo"
)

const (
	ConfigEventRouteUpdated = "route_updated"
	ConfigServiceRouter     = "router"
)
