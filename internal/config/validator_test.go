package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/pkg/models"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: 10, WriteTimeoutSeconds: 10},
		Router: RouterConfig{
			Workers:       3,
			QueueCapacity: 100,
			PollInterval:  time.Second,
			Retry:         RouterRetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute},
		},
	}
}

func staticRoute(name string) models.RouteDefinition {
	return models.RouteDefinition{
		Name:          name,
		EventTypes:    []string{"*"},
		SourceFilters: []string{"*"},
		Priority:      2,
		Handler:       models.HandlerDefinition{Type: "log"},
		Enabled:       true,
	}
}

func TestValidateStatic_Valid(t *testing.T) {
	require.NoError(t, ValidateStatic(validConfig()))
}

func TestValidateStatic_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no workers", func(c *Config) { c.Router.Workers = 0 }, "router.workers"},
		{"no queue", func(c *Config) { c.Router.QueueCapacity = 0 }, "router.queue_capacity"},
		{"max below base", func(c *Config) { c.Router.Retry.MaxDelay = time.Millisecond }, "router.retry.max_delay"},
		{"unknown broker", func(c *Config) { c.Broker.Type = "rabbitmq" }, "broker.type"},
		{"kafka without brokers", func(c *Config) { c.Broker.Type = "kafka" }, "broker.kafka.brokers"},
		{"postgres without user", func(c *Config) {
			c.Database.Postgres = PostgresConfig{Host: "db", Port: 5432, DBName: "routes"}
		}, "database.postgres.user"},
		{"mongo bad scheme", func(c *Config) {
			c.Database.MongoDB = MongoDBConfig{URI: "http://mongo", Database: "events"}
		}, "database.mongodb.uri"},
		{"negative burst", func(c *Config) {
			c.Admission.Endpoints = map[string]EndpointLimitConfig{"webhook": {BurstLimit: -1}}
		}, "admission.endpoints.webhook"},
		{"stats without prefix", func(c *Config) { c.Admission.Stats.Enabled = true }, "admission.stats.prefix"},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, "tracing.otlp.endpoint"},
		{"invalid route", func(c *Config) {
			r := staticRoute("bad")
			r.Priority = 9
			c.Router.Routes = []models.RouteDefinition{r}
		}, "router.routes[0]"},
		{"duplicate route", func(c *Config) {
			c.Router.Routes = []models.RouteDefinition{staticRoute("a"), staticRoute("a")}
		}, "router.routes[1].name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "'"+tt.field+"'")
		})
	}
}

func TestValidateKafka_Valid(t *testing.T) {
	err := validateKafka(KafkaConfig{
		Brokers:    []string{"localhost:9092"},
		GroupID:    "router",
		InputTopic: "events",
		Retry:      RetryConfig{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: time.Minute, Multiplier: 2},
	})
	assert.NoError(t, err)
}

func TestValidationError_As(t *testing.T) {
	err := validateServer(ServerConfig{Port: 70000})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "server.port", verr.Field)
}
