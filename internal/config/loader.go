package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"eventgate/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvVariables(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment variables: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("router.workers", constants.DefaultWorkers)
	v.SetDefault("router.queue_capacity", constants.DefaultQueueCapacity)
	v.SetDefault("router.poll_interval", constants.DefaultPollInterval)
	v.SetDefault("router.retry.base_delay", constants.DefaultRetryBase)
	v.SetDefault("router.retry.max_delay", constants.DefaultRetryMax)
	v.SetDefault("router.reload.interval_seconds", constants.DefaultReloadIntervalSeconds)

	v.SetDefault("broker.kafka.retry.max_attempts", 3)
	v.SetDefault("broker.kafka.retry.initial_interval", "1s")
	v.SetDefault("broker.kafka.retry.max_interval", "30s")
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)
	v.SetDefault("broker.kafka.retry.max_elapsed_time", "2m")

	v.SetDefault("admission.cleanup_interval_seconds", constants.DefaultLimiterCleanupSec)
	v.SetDefault("admission.stats.prefix", constants.DefaultAdmissionStatsPref)
	v.SetDefault("admission.stats.ttl_seconds", int(constants.DefaultAdmissionStatsTTL.Seconds()))

	v.SetDefault("database.migrations_dir", "migrations/postgres")
}

func bindEnvVariables(v *viper.Viper) error {
	bindings := map[string]string{
		"broker.type":                      "BROKER_TYPE",
		"broker.kafka.group_id":            "BROKER_KAFKA_GROUP_ID",
		"broker.kafka.input_topic":         "BROKER_KAFKA_INPUT_TOPIC",
		"broker.kafka.config_update_topic": "BROKER_KAFKA_CONFIG_UPDATE_TOPIC",
		"broker.kafka.dlq_topic":           "BROKER_KAFKA_DLQ_TOPIC",

		"database.postgres.host":     "DATABASE_POSTGRES_HOST",
		"database.postgres.port":     "DATABASE_POSTGRES_PORT",
		"database.postgres.user":     "DATABASE_POSTGRES_USER",
		"database.postgres.password": "DATABASE_POSTGRES_PASSWORD",
		"database.postgres.dbname":   "DATABASE_POSTGRES_DBNAME",
		"database.postgres.sslmode":  "DATABASE_POSTGRES_SSLMODE",
		"database.run_migrations":    "DATABASE_RUN_MIGRATIONS",

		"database.redis.host":     "DATABASE_REDIS_HOST",
		"database.redis.port":     "DATABASE_REDIS_PORT",
		"database.redis.password": "DATABASE_REDIS_PASSWORD",
		"database.redis.db":       "DATABASE_REDIS_DB",

		"database.mongodb.uri":      "DATABASE_MONGODB_URI",
		"database.mongodb.database": "DATABASE_MONGODB_DATABASE",

		"server.port": "SERVER_PORT",

		"router.workers":        "ROUTER_WORKERS",
		"router.queue_capacity": "ROUTER_QUEUE_CAPACITY",

		"logging.level":  "LOGGING_LEVEL",
		"logging.format": "LOGGING_FORMAT",

		"tracing.enabled":       "TRACING_ENABLED",
		"tracing.service_name":  "TRACING_SERVICE_NAME",
		"tracing.otlp.endpoint": "TRACING_OTLP_ENDPOINT",
		"tracing.otlp.insecure": "TRACING_OTLP_INSECURE",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// applyEnvOverrides handles values viper cannot split on its own.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
