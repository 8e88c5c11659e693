package negotiation

import (
	"math"
	"math/rand"

	"tripdeal/models"
)

// Discount-request thresholds splitting the counter-offer strategy bands.
const (
	modestDiscountCap = 0.30
	steepDiscountCap  = 0.50
)

// acceptChance is the probability a modest offer is taken as-is.
const acceptChance = 0.70

// ComputeCounter produces a bounded counter-offer for a user offer against a
// base price. The rand source is injected so draws are reproducible; it is
// never a package global.
//
// The returned price is clamped to
//
//	max(result, userOffer, basePrice*(1+profile.MinMarginPct))
//
// which is the never-loss floor. The clamp is applied on every path,
// including fallback, and must never be bypassed.
func ComputeCounter(basePrice, userOffer float64, profile models.GuardrailProfile, rng *rand.Rand) float64 {
	discountRequested := (basePrice - userOffer) / basePrice

	var result float64
	switch {
	case discountRequested <= modestDiscountCap:
		if rng.Float64() < acceptChance {
			result = userOffer
		} else {
			result = math.Round(userOffer * 1.10)
		}
	case discountRequested <= steepDiscountCap:
		result = drawBetween(basePrice*0.70, basePrice*0.85, profile, basePrice, rng)
	default:
		result = drawBetween(basePrice*0.80, basePrice*0.90, profile, basePrice, rng)
	}

	return clampCounter(result, basePrice, userOffer, profile)
}

// drawBetween draws uniformly over [lo, hi], with lo raised so the draw never
// concedes more than the profile's concession cap allows from the base price.
func drawBetween(lo, hi float64, profile models.GuardrailProfile, basePrice float64, rng *rand.Rand) float64 {
	if concessionFloor := basePrice * (1 - profile.MaxConcessionPct); profile.MaxConcessionPct > 0 && concessionFloor > lo {
		lo = concessionFloor
	}
	if lo >= hi {
		return hi
	}
	return lo + rng.Float64()*(hi-lo)
}

// clampCounter enforces the never-loss floor.
func clampCounter(result, basePrice, userOffer float64, profile models.GuardrailProfile) float64 {
	if result < userOffer {
		result = userOffer
	}
	if floor := profile.FloorPrice(basePrice); result < floor {
		result = floor
	}
	return result
}
