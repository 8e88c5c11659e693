package guardrail

import (
	"context"
	"fmt"
	"sync"

	guardrailRepo "tripdeal/database/repository/guardrail"
	"tripdeal/models"
	"tripdeal/utils"

	"go.uber.org/zap"
)

// Resolver resolves the guardrail profile bounding a negotiation. Profiles
// are loaded once per process and refreshed only by explicit Reload.
type Resolver interface {
	Resolve(module models.Module, supplierID, routeBucket, ttlBucket string) models.GuardrailProfile
	Reload(ctx context.Context) error
}

// DefaultResolver implements Resolver over an in-memory cache of persisted
// guardrail records. The cache is read-only between reloads.
type DefaultResolver struct {
	Repo guardrailRepo.GuardrailRepository

	mu    sync.RWMutex
	cache map[profileKey]models.GuardrailProfile
}

type profileKey struct {
	module      models.Module
	supplierID  string
	routeBucket string
	ttlBucket   string
}

// NewResolver loads all guardrail profiles and verifies every module has a
// default record. A missing module default is a startup-time configuration
// fault, never a per-request one.
func NewResolver(ctx context.Context, repo guardrailRepo.GuardrailRepository) (*DefaultResolver, error) {
	r := &DefaultResolver{Repo: repo}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the cache with the current persisted profile set.
func (r *DefaultResolver) Reload(ctx context.Context) error {
	profiles, err := r.Repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load guardrail profiles: %w", err)
	}

	cache := make(map[profileKey]models.GuardrailProfile, len(profiles))
	for _, p := range profiles {
		cache[profileKey{p.Module, p.SupplierID, p.RouteBucket, p.TTLBucket}] = p
	}

	// Every module must carry a default record (no supplier, wildcard
	// buckets); counter-offer generation is unsafe without a floor.
	for _, module := range []models.Module{
		models.ModuleFlights, models.ModuleHotels, models.ModuleSightseeing, models.ModuleTransfers,
	} {
		defaultKey := profileKey{module, "", models.RouteBucketAny, models.TTLBucketAny}
		if _, ok := cache[defaultKey]; !ok {
			return &ConfigurationError{Module: module}
		}
	}

	r.mu.Lock()
	r.cache = cache
	r.mu.Unlock()

	utils.GetLogger().Info("guardrail profiles loaded", zap.Int("count", len(profiles)))
	return nil
}

// Resolve returns the most specific profile matching the key, walking from
// (module, supplier, route, ttl) down to the module default. Load guarantees
// the default exists, so Resolve never fails.
func (r *DefaultResolver) Resolve(module models.Module, supplierID, routeBucket, ttlBucket string) models.GuardrailProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, supplier := range []string{supplierID, ""} {
		for _, route := range []string{routeBucket, models.RouteBucketAny} {
			for _, ttl := range []string{ttlBucket, models.TTLBucketAny} {
				if p, ok := r.cache[profileKey{module, supplier, route, ttl}]; ok {
					return p
				}
			}
		}
	}

	// Unreachable when Reload succeeded; kept as a hard stop for the
	// never-loss invariant rather than returning a zero-margin profile.
	panic(&ConfigurationError{Module: module})
}
