package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/fitness-ai/backend/internal/models"
)

// MongoStore keeps rate-limit analytics events in MongoDB.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("ratelimit_events")}
}

// EnsureIndexes creates the identifier/time index used by analytics queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identifier", Value: 1}, {Key: "at", Value: -1}},
		Options: options.Index().SetName("identifier_at"),
	})
	if err != nil {
		return fmt.Errorf("mongo create index: %w", err)
	}
	return nil
}

// Record stores a single limiter decision.
func (s *MongoStore) Record(ctx context.Context, event models.RateLimitEvent) error {
	if _, err := s.col.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}
