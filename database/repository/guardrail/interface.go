package guardrailRepo

import (
	"context"

	"tripdeal/database"
	"tripdeal/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// GuardrailRepository persists guardrail profile records. Profiles are read
// in bulk at load time and cached by the resolver; per-request reads never
// hit this repository.
type GuardrailRepository interface {
	Create(ctx context.Context, profile models.GuardrailProfile) (string, error)
	GetByID(ctx context.Context, id string) (*models.GuardrailProfile, error)
	GetAll(ctx context.Context) ([]models.GuardrailProfile, error)
	GetByModule(ctx context.Context, module models.Module) ([]models.GuardrailProfile, error)
	DeleteByID(ctx context.Context, id string) error
	EnsureIndexes() error
}

type mongoGuardrailRepo struct {
	coll *mongo.Collection
}

// NewMongoGuardrailRepo returns a GuardrailRepository backed by MongoDB.
func NewMongoGuardrailRepo() GuardrailRepository {
	return &mongoGuardrailRepo{
		coll: database.Collection("guardrail_profiles"),
	}
}
