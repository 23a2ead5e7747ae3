package config

import (
	"fmt"
	"strings"

	"eventgate/pkg/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateRouter(cfg.Router); err != nil {
		errors = append(errors, err)
	}

	if err := validateAdmission(cfg.Admission); err != nil {
		errors = append(errors, err)
	}

	if err := validateTracing(cfg.Tracing); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.InputTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.input_topic",
			Message: "Kafka input topic is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateRouter(cfg RouterConfig) error {
	if cfg.Workers < 1 {
		return &ValidationError{
			Field:   "router.workers",
			Message: fmt.Sprintf("at least one worker is required, got %d", cfg.Workers),
		}
	}

	if cfg.QueueCapacity < 1 {
		return &ValidationError{
			Field:   "router.queue_capacity",
			Message: fmt.Sprintf("queue capacity must be positive, got %d", cfg.QueueCapacity),
		}
	}

	if cfg.PollInterval <= 0 {
		return &ValidationError{
			Field:   "router.poll_interval",
			Message: "poll interval must be positive",
		}
	}

	if cfg.Retry.BaseDelay <= 0 {
		return &ValidationError{
			Field:   "router.retry.base_delay",
			Message: "base delay must be positive",
		}
	}

	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return &ValidationError{
			Field:   "router.retry.max_delay",
			Message: "max delay must be greater than or equal to base delay",
		}
	}

	if cfg.Reload.IntervalSeconds < 0 {
		return &ValidationError{
			Field:   "router.reload.interval_seconds",
			Message: "reload interval must be non-negative",
		}
	}

	seen := make(map[string]bool, len(cfg.Routes))
	for i, def := range cfg.Routes {
		if err := models.ValidateRouteDefinition(&def); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("router.routes[%d]", i),
				Message: err.Error(),
			}
		}
		if seen[def.Name] {
			return &ValidationError{
				Field:   fmt.Sprintf("router.routes[%d].name", i),
				Message: fmt.Sprintf("duplicate route name: %s", def.Name),
			}
		}
		seen[def.Name] = true
	}

	return nil
}

func validateAdmission(cfg AdmissionConfig) error {
	for name, ep := range cfg.Endpoints {
		field := "admission.endpoints." + name
		if ep.RequestsPerMinute < 0 || ep.RequestsPerHour < 0 || ep.BurstLimit < 0 {
			return &ValidationError{
				Field:   field,
				Message: "limits must be non-negative",
			}
		}
		if ep.BlockDurationSeconds < 0 {
			return &ValidationError{
				Field:   field + ".block_duration_seconds",
				Message: "block duration must be non-negative",
			}
		}
	}

	if cfg.CleanupIntervalSeconds < 0 {
		return &ValidationError{
			Field:   "admission.cleanup_interval_seconds",
			Message: "cleanup interval must be non-negative",
		}
	}

	if cfg.Stats.Enabled && cfg.Stats.Prefix == "" {
		return &ValidationError{
			Field:   "admission.stats.prefix",
			Message: "stats key prefix is required when stats are enabled",
		}
	}

	return nil
}

func validateTracing(cfg TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.OTLP.Endpoint == "" {
		return &ValidationError{
			Field:   "tracing.otlp.endpoint",
			Message: "OTLP endpoint is required when tracing is enabled",
		}
	}

	if cfg.Sampler.Param < 0 || cfg.Sampler.Param > 1 {
		return &ValidationError{
			Field:   "tracing.sampler.param",
			Message: fmt.Sprintf("sampler param must be between 0 and 1, got %v", cfg.Sampler.Param),
		}
	}

	validSamplers := map[string]bool{
		"": true, "always_on": true, "always_off": true, "traceidratio": true,
		"parentbased_always_on": true, "parentbased_traceidratio": true,
	}
	if !validSamplers[cfg.Sampler.Type] {
		return &ValidationError{
			Field:   "tracing.sampler.type",
			Message: fmt.Sprintf("invalid sampler type: %s (valid: always_on, always_off, traceidratio, parentbased_always_on, parentbased_traceidratio)", cfg.Sampler.Type),
		}
	}

	return nil
}
