// Package entitlement holds the static capability table gating which
// features each subscription tier may invoke. The table is built once at
// process start and never mutated; every gate in the service goes
// through Policy.Allowed so endpoints cannot drift apart.
package entitlement

import (
	"errors"

	subscription "github.com/astralhq/oraculum/internal/subscription/domain"
)

// FeatureKey identifies a generatable capability.
type FeatureKey string

const (
	FeatureHoroscopeBasic      FeatureKey = "horoscope_basic"
	FeatureHoroscopeEnhanced   FeatureKey = "horoscope_enhanced"
	FeatureTarotReading        FeatureKey = "tarot_reading"
	FeatureIChingReading       FeatureKey = "iching_reading"
	FeatureDreamInterpretation FeatureKey = "dream_interpretation"
)

// ErrUnknownFeature flags a feature key absent from the table. That is a
// programming error, not a policy decision, and must fail loudly instead
// of defaulting to allow or deny.
var ErrUnknownFeature = errors.New("unknown_feature")

var knownFeatures = map[FeatureKey]struct{}{
	FeatureHoroscopeBasic:      {},
	FeatureHoroscopeEnhanced:   {},
	FeatureTarotReading:        {},
	FeatureIChingReading:       {},
	FeatureDreamInterpretation: {},
}

// Policy answers (tier, feature) entitlement questions from an immutable
// table.
type Policy struct {
	table map[subscription.Tier]map[FeatureKey]struct{}
}

// NewPolicy builds the default capability table. Higher tiers include
// everything below them.
func NewPolicy() *Policy {
	free := featureSet(FeatureHoroscopeBasic)
	premium := featureSet(
		FeatureHoroscopeBasic,
		FeatureHoroscopeEnhanced,
		FeatureTarotReading,
		FeatureIChingReading,
	)
	pro := featureSet(
		FeatureHoroscopeBasic,
		FeatureHoroscopeEnhanced,
		FeatureTarotReading,
		FeatureIChingReading,
		FeatureDreamInterpretation,
	)

	return &Policy{table: map[subscription.Tier]map[FeatureKey]struct{}{
		subscription.TierFree:    free,
		subscription.TierPremium: premium,
		subscription.TierPro:     pro,
	}}
}

// Allowed reports whether the tier may use the feature. Unknown features
// return ErrUnknownFeature before any tier lookup.
func (p *Policy) Allowed(tier subscription.Tier, feature FeatureKey) (bool, error) {
	if _, ok := knownFeatures[feature]; !ok {
		return false, ErrUnknownFeature
	}

	features, ok := p.table[tier]
	if !ok {
		return false, nil
	}
	_, allowed := features[feature]
	return allowed, nil
}

// KnownFeature reports whether the key names a feature this service can
// generate at all.
func KnownFeature(feature FeatureKey) bool {
	_, ok := knownFeatures[feature]
	return ok
}

func featureSet(keys ...FeatureKey) map[FeatureKey]struct{} {
	set := make(map[FeatureKey]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}
