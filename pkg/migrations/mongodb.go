package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureEventCollection creates the indexes the mongo route handler relies on.
// Mongo creates the collection itself on first insert.
func EnsureEventCollection(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetName("idx_" + collection + "_event_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "source", Value: 1}, {Key: "event_type", Value: 1}},
			Options: options.Index().SetName("idx_" + collection + "_source_event_type"),
		},
		{
			Keys:    bson.D{{Key: "routed_at", Value: -1}},
			Options: options.Index().SetName("idx_" + collection + "_routed_at"),
		},
	}

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
	}

	return nil
}
