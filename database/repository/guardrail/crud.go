package guardrailRepo

import (
	"context"
	"errors"
	"time"

	"tripdeal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Create inserts a new guardrail profile record and returns its ID.
func (r *mongoGuardrailRepo) Create(ctx context.Context, profile models.GuardrailProfile) (string, error) {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = time.Now()

	_, err := r.coll.InsertOne(ctx, profile)
	if err != nil {
		return "", err
	}
	return profile.ID, nil
}

// GetByID returns a guardrail profile by its ID.
func (r *mongoGuardrailRepo) GetByID(ctx context.Context, id string) (*models.GuardrailProfile, error) {
	var profile models.GuardrailProfile
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetAll fetches every persisted guardrail profile.
func (r *mongoGuardrailRepo) GetAll(ctx context.Context) ([]models.GuardrailProfile, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []models.GuardrailProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// GetByModule fetches all profiles for a single storefront module.
func (r *mongoGuardrailRepo) GetByModule(ctx context.Context, module models.Module) ([]models.GuardrailProfile, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"module": module})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []models.GuardrailProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// DeleteByID removes a guardrail profile by ID.
func (r *mongoGuardrailRepo) DeleteByID(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errors.New("guardrail profile not found")
	}
	return nil
}
