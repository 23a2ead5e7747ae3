package broker

import (
	"fmt"

	"eventgate/internal/config"
	"eventgate/internal/logger"
)

const TypeKafka = "kafka"

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if err := checkSupported(cfg); err != nil {
		return nil, err
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

// NewConsumer builds a consumer whose metrics and dead letters are labelled
// with serviceName.
func NewConsumer(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Consumer, error) {
	if err := checkSupported(cfg); err != nil {
		return nil, err
	}
	return NewKafkaConsumer(cfg.Kafka, serviceName, log), nil
}

func checkSupported(cfg config.BrokerConfig) error {
	if cfg.Type != TypeKafka {
		return fmt.Errorf("unknown broker type: %q", cfg.Type)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka broker requires at least one broker address")
	}
	return nil
}
