package guardrailRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the necessary indexes on the guardrail collection.
func (r *mongoGuardrailRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// One record per guardrail key.
		{
			Keys: bson.D{
				{Key: "module", Value: 1},
				{Key: "supplierId", Value: 1},
				{Key: "routeBucket", Value: 1},
				{Key: "season", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("guardrail_key_idx"),
		},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create guardrail indexes: %w", err)
	}
	return nil
}
