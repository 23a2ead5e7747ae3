package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventgate/internal/logger"
	"eventgate/internal/routing"
	"eventgate/pkg/migrations"
)

type documentInserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoHandler stores each routed event as one document. Replays of the
// same event id hit the unique index and count as delivered.
type MongoHandler struct {
	collection string
	inserter   documentInserter
	ensure     func(ctx context.Context) error
	logger     logger.Logger

	mu      sync.Mutex
	indexed bool
}

func NewMongoHandler(db *mongo.Database, collection string, log logger.Logger) *MongoHandler {
	return &MongoHandler{
		collection: collection,
		inserter:   db.Collection(collection),
		ensure: func(ctx context.Context) error {
			return migrations.EnsureEventCollection(ctx, db, collection)
		},
		logger: log,
	}
}

func (h *MongoHandler) ensureIndexes(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.indexed || h.ensure == nil {
		return nil
	}
	if err := h.ensure(ctx); err != nil {
		return err
	}
	h.indexed = true
	return nil
}

func (h *MongoHandler) Invoke(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	if err := h.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	info, _ := routing.EventInfoFromContext(ctx)
	doc := bson.M{
		"event_id":   info.ID,
		"source":     info.Source,
		"event_type": info.EventType,
		"route_name": info.RouteName,
		"payload":    payload,
		"event_time": info.Timestamp,
		"routed_at":  time.Now().UTC(),
	}

	res, err := h.inserter.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			h.logger.DebugwCtx(ctx, "Event already stored", "collection", h.collection, "event_id", info.ID)
			return map[string]interface{}{"collection": h.collection, "duplicate": true}, nil
		}
		return nil, fmt.Errorf("mongodb insert failed: %w", err)
	}

	return map[string]interface{}{"collection": h.collection, "inserted_id": res.InsertedID}, nil
}
