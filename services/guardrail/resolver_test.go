package guardrail

import (
	"context"
	"errors"
	"testing"

	"tripdeal/models"
)

type fakeRepo struct {
	profiles []models.GuardrailProfile
	err      error
}

func (f *fakeRepo) Create(ctx context.Context, p models.GuardrailProfile) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeRepo) GetByID(ctx context.Context, id string) (*models.GuardrailProfile, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRepo) GetAll(ctx context.Context) ([]models.GuardrailProfile, error) {
	return f.profiles, f.err
}
func (f *fakeRepo) GetByModule(ctx context.Context, m models.Module) ([]models.GuardrailProfile, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRepo) DeleteByID(ctx context.Context, id string) error { return nil }
func (f *fakeRepo) EnsureIndexes() error                            { return nil }

func defaultProfiles() []models.GuardrailProfile {
	var out []models.GuardrailProfile
	for _, m := range []models.Module{
		models.ModuleFlights, models.ModuleHotels, models.ModuleSightseeing, models.ModuleTransfers,
	} {
		out = append(out, models.GuardrailProfile{
			ID:           "default-" + string(m),
			Module:       m,
			RouteBucket:  models.RouteBucketAny,
			TTLBucket:    models.TTLBucketAny,
			MinMarginPct: -0.20,
		})
	}
	return out
}

func TestResolveMostSpecificWins(t *testing.T) {
	profiles := defaultProfiles()
	profiles = append(profiles,
		models.GuardrailProfile{
			ID: "gulf-imminent", Module: models.ModuleFlights, SupplierID: "EK",
			RouteBucket: "gulf", TTLBucket: models.TTLBucketImminent, MinMarginPct: -0.05,
		},
		models.GuardrailProfile{
			ID: "gulf-any", Module: models.ModuleFlights, SupplierID: "EK",
			RouteBucket: "gulf", TTLBucket: models.TTLBucketAny, MinMarginPct: -0.10,
		},
		models.GuardrailProfile{
			ID: "flights-gulf", Module: models.ModuleFlights,
			RouteBucket: "gulf", TTLBucket: models.TTLBucketAny, MinMarginPct: -0.15,
		},
	)

	resolver, err := NewResolver(context.Background(), &fakeRepo{profiles: profiles})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	tests := []struct {
		name                               string
		supplier, routeBucket, ttlBucket   string
		wantID                             string
	}{
		{"exact match", "EK", "gulf", models.TTLBucketImminent, "gulf-imminent"},
		{"ttl falls back to any", "EK", "gulf", models.TTLBucketFar, "gulf-any"},
		{"supplier falls back to module", "QR", "gulf", models.TTLBucketFar, "flights-gulf"},
		{"route falls back to default", "QR", "domestic", models.TTLBucketNear, "default-flights"},
		{"empty key hits default", "", "", "", "default-flights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolver.Resolve(models.ModuleFlights, tt.supplier, tt.routeBucket, tt.ttlBucket)
			if got.ID != tt.wantID {
				t.Fatalf("resolved %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestLoadFailsWithoutModuleDefault(t *testing.T) {
	profiles := defaultProfiles()[:3] // transfers default missing

	_, err := NewResolver(context.Background(), &fakeRepo{profiles: profiles})
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if confErr.Module != models.ModuleTransfers {
		t.Fatalf("want transfers flagged, got %q", confErr.Module)
	}
}

func TestReloadReplacesCache(t *testing.T) {
	repo := &fakeRepo{profiles: defaultProfiles()}
	resolver, err := NewResolver(context.Background(), repo)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	updated := defaultProfiles()
	updated[0].MinMarginPct = -0.33
	repo.profiles = updated
	if err := resolver.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	got := resolver.Resolve(models.ModuleFlights, "", "", "")
	if got.MinMarginPct != -0.33 {
		t.Fatalf("reload did not replace cache: margin %.2f", got.MinMarginPct)
	}
}
