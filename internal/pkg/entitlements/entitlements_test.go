package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		name       string
		earned     int
		enterprise bool
		want       Tier
	}{
		{"No earnings", 0, false, TierFree},
		{"Just below pro", ProThreshold - 1, false, TierFree},
		{"Exactly pro", ProThreshold, false, TierPro},
		{"Just below pro plus", ProPlusThreshold - 1, false, TierPro},
		{"Exactly pro plus", ProPlusThreshold, false, TierProPlus},
		{"Far beyond pro plus", 1000000, false, TierProPlus},
		{"Enterprise flag beats zero earnings", 0, true, TierEnterprise},
		{"Enterprise flag beats pro plus earnings", ProPlusThreshold, true, TierEnterprise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierFor(tt.earned, tt.enterprise))
		})
	}
}

func TestNormalizeTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"free", TierFree},
		{"pro", TierPro},
		{"pro_plus", TierProPlus},
		{"PRO_PLUS", TierProPlus},
		{" enterprise ", TierEnterprise},
		{"premium", TierFree},
		{"", TierFree},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTier(tt.in))
	}
}

func TestTierRankOrdering(t *testing.T) {
	assert.Less(t, TierRank(TierFree), TierRank(TierPro))
	assert.Less(t, TierRank(TierPro), TierRank(TierProPlus))
	assert.Less(t, TierRank(TierProPlus), TierRank(TierEnterprise))
}

func TestCanCreatePrivateAudit(t *testing.T) {
	assert.False(t, CanCreatePrivateAudit(TierFree))
	assert.True(t, CanCreatePrivateAudit(TierPro))
	assert.True(t, CanCreatePrivateAudit(TierProPlus))
	assert.True(t, CanCreatePrivateAudit(TierEnterprise))
}
