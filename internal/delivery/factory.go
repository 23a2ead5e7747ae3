package delivery

import (
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"

	"eventgate/internal/broker"
	"eventgate/internal/config"
	"eventgate/internal/constants"
	"eventgate/internal/logger"
	"eventgate/internal/routing"
	apperrors "eventgate/pkg/errors"
	"eventgate/pkg/models"
)

// Dependencies are the outbound clients handlers may use. Any of them may be
// nil; routes needing a missing one fail to build.
type Dependencies struct {
	Producer       broker.Producer
	Mongo          *mongo.Client
	HTTPClient     *http.Client
	CircuitBreaker config.CircuitBreakerConfig
	Logger         logger.Logger
}

// Factory builds route handlers from their declarative definition.
type Factory struct {
	deps Dependencies
}

func NewFactory(deps Dependencies) *Factory {
	if deps.Logger == nil {
		deps.Logger = logger.NopLogger()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	return &Factory{deps: deps}
}

func (f *Factory) Build(def models.HandlerDefinition) (routing.EventHandler, error) {
	switch def.Type {
	case constants.HandlerTypeLog:
		return NewLogHandler(f.deps.Logger), nil

	case constants.HandlerTypeKafka:
		if def.Topic == "" {
			return nil, invalid("kafka handler requires a topic")
		}
		if f.deps.Producer == nil {
			return nil, apperrors.ErrServiceUnavailable.WithMessage("kafka handler requires a configured broker")
		}
		return NewKafkaHandler(f.deps.Producer, def.Topic), nil

	case constants.HandlerTypeHTTP:
		if def.URL == "" {
			return nil, invalid("http handler requires a url")
		}
		return NewHTTPHandler(f.deps.HTTPClient, def, f.deps.CircuitBreaker), nil

	case constants.HandlerTypeMongo:
		if def.Database == "" || def.Collection == "" {
			return nil, invalid("mongo handler requires database and collection")
		}
		if f.deps.Mongo == nil {
			return nil, apperrors.ErrServiceUnavailable.WithMessage("mongo handler requires a configured mongodb")
		}
		db := f.deps.Mongo.Database(def.Database)
		return NewMongoHandler(db, def.Collection, f.deps.Logger), nil

	default:
		return nil, invalid(fmt.Sprintf("unknown handler type: %q", def.Type))
	}
}

func invalid(msg string) error {
	return apperrors.ErrValidation.WithMessage(msg)
}
