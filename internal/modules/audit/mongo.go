package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultHistoryLimit = 100

// MongoRecorder appends entries to a MongoDB collection.
type MongoRecorder struct {
	coll *mongo.Collection
}

func NewMongoRecorder(coll *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{coll: coll}
}

// EnsureIndexes creates the lookup indexes of the trail.
func (r *MongoRecorder) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "content.id", Value: 1}, {Key: "at", Value: -1}}},
		{Keys: bson.D{{Key: "creatorId", Value: 1}, {Key: "at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("audit indexes: %w", err)
	}
	return nil
}

func (r *MongoRecorder) Record(ctx context.Context, e Entry) error {
	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}

func (r *MongoRecorder) History(ctx context.Context, contentID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "at", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 0})

	cursor, err := r.coll.Find(ctx, bson.M{"content.id": contentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("audit find: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]Entry, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("audit decode: %w", err)
	}
	return out, nil
}
