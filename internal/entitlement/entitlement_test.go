package entitlement

import (
	"testing"

	subscription "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowed_FullMatrix(t *testing.T) {
	policy := NewPolicy()

	matrix := []struct {
		tier    subscription.Tier
		feature FeatureKey
		allowed bool
	}{
		{subscription.TierFree, FeatureHoroscopeBasic, true},
		{subscription.TierFree, FeatureHoroscopeEnhanced, false},
		{subscription.TierFree, FeatureTarotReading, false},
		{subscription.TierFree, FeatureIChingReading, false},
		{subscription.TierFree, FeatureDreamInterpretation, false},

		{subscription.TierPremium, FeatureHoroscopeBasic, true},
		{subscription.TierPremium, FeatureHoroscopeEnhanced, true},
		{subscription.TierPremium, FeatureTarotReading, true},
		{subscription.TierPremium, FeatureIChingReading, true},
		{subscription.TierPremium, FeatureDreamInterpretation, false},

		{subscription.TierPro, FeatureHoroscopeBasic, true},
		{subscription.TierPro, FeatureHoroscopeEnhanced, true},
		{subscription.TierPro, FeatureTarotReading, true},
		{subscription.TierPro, FeatureIChingReading, true},
		{subscription.TierPro, FeatureDreamInterpretation, true},
	}

	for _, tc := range matrix {
		got, err := policy.Allowed(tc.tier, tc.feature)
		require.NoError(t, err)
		assert.Equalf(t, tc.allowed, got, "tier=%s feature=%s", tc.tier, tc.feature)
	}
}

func TestAllowed_HigherTiersKeepLowerFeatures(t *testing.T) {
	policy := NewPolicy()
	tiers := []subscription.Tier{subscription.TierFree, subscription.TierPremium, subscription.TierPro}

	for feature := range knownFeatures {
		var prev bool
		for _, tier := range tiers {
			allowed, err := policy.Allowed(tier, feature)
			require.NoError(t, err)
			if prev {
				assert.Truef(t, allowed, "feature %s lost when upgrading to %s", feature, tier)
			}
			prev = allowed
		}
	}
}

func TestAllowed_UnknownFeatureFailsFast(t *testing.T) {
	policy := NewPolicy()

	allowed, err := policy.Allowed(subscription.TierPro, FeatureKey("palm_reading"))
	assert.ErrorIs(t, err, ErrUnknownFeature)
	assert.False(t, allowed)
}

func TestAllowed_UnknownTierDeniesKnownFeature(t *testing.T) {
	policy := NewPolicy()

	allowed, err := policy.Allowed(subscription.Tier("gold"), FeatureHoroscopeBasic)
	require.NoError(t, err)
	assert.False(t, allowed)
}
