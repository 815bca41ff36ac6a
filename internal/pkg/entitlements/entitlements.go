package entitlements

import "strings"

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierProPlus    Tier = "pro_plus"
	TierEnterprise Tier = "enterprise"
)

// Lifetime-earned credit thresholds for derived tiers. Enterprise is never
// derived from credits, it is an explicit account flag.
const (
	ProThreshold     = 5000
	ProPlusThreshold = 15000
)

// TierFor classifies an account by its lifetime earned credits. The
// enterprise flag overrides credit-based classification.
func TierFor(totalCreditsEarned int, enterprise bool) Tier {
	if enterprise {
		return TierEnterprise
	}
	switch {
	case totalCreditsEarned >= ProPlusThreshold:
		return TierProPlus
	case totalCreditsEarned >= ProThreshold:
		return TierPro
	default:
		return TierFree
	}
}

// NormalizeTier maps arbitrary input to a known tier, defaulting to free.
func NormalizeTier(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case string(TierPro):
		return TierPro
	case string(TierProPlus):
		return TierProPlus
	case string(TierEnterprise):
		return TierEnterprise
	default:
		return TierFree
	}
}

// TierRank orders tiers for comparisons; higher rank means more entitled.
func TierRank(tier Tier) int {
	switch tier {
	case TierEnterprise:
		return 3
	case TierProPlus:
		return 2
	case TierPro:
		return 1
	default:
		return 0
	}
}

// CanCreatePrivateAudit reports whether a tier may create private audit
// sessions. Free accounts may not.
func CanCreatePrivateAudit(tier Tier) bool {
	return TierRank(tier) >= TierRank(TierPro)
}
