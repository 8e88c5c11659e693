package models

import "time"

// RouteBucketAny matches any route bucket when resolving a guardrail profile.
const RouteBucketAny = "any"

// TTLBucketAny matches any time-to-event bucket.
const TTLBucketAny = "any"

// Time-to-event buckets, derived from the departure or event date at session
// start. Persisted guardrail records store the bucket in their season field.
const (
	TTLBucketImminent = "imminent" // less than 72h out
	TTLBucketNear     = "near"     // less than 14 days out
	TTLBucketFar      = "far"
)

// GuardrailProfile bounds how far a counter-offer may concede from the base
// price. Profiles are immutable once resolved for a session.
type GuardrailProfile struct {
	ID         string `json:"id" bson:"id"`
	Module     Module `json:"module" bson:"module"`
	SupplierID string `json:"supplierId,omitempty" bson:"supplierId,omitempty"`
	// RouteBucket groups products by route/region; "any" is the wildcard.
	RouteBucket string `json:"routeBucket" bson:"routeBucket"`
	// TTLBucket groups products by time to departure/event; "any" is the
	// wildcard. Stored as "season" upstream.
	TTLBucket string `json:"ttlBucket" bson:"season"`

	MarkupPct        float64 `json:"markupPct" bson:"markupPct"`
	MinMarginPct     float64 `json:"minMarginPct" bson:"minMarginPct"`
	MaxConcessionPct float64 `json:"maxConcessionPct" bson:"maxConcessionPct"`
	AcceptBandLow    float64 `json:"acceptBandLow" bson:"acceptBandLow"`
	AcceptBandHigh   float64 `json:"acceptBandHigh" bson:"acceptBandHigh"`
	DiscountFactor   float64 `json:"discountFactor" bson:"discountFactor"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// FloorPrice is the never-loss floor: the minimum price a counter-offer may
// never fall below for the given base price.
func (p GuardrailProfile) FloorPrice(basePrice float64) float64 {
	return basePrice * (1 + p.MinMarginPct)
}

// TTLBucketFor buckets a departure/event date relative to now.
func TTLBucketFor(eventDate, now time.Time) string {
	until := eventDate.Sub(now)
	switch {
	case until < 72*time.Hour:
		return TTLBucketImminent
	case until < 14*24*time.Hour:
		return TTLBucketNear
	default:
		return TTLBucketFar
	}
}
