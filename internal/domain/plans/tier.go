package plans

import "strings"

// Tier constants (single source of truth)
const (
	TierFree    = "free"
	TierBasic   = "basic"
	TierPro     = "pro"
	TierPremium = "premium"
)

func Normalize(tier string) string {
	return strings.ToLower(strings.TrimSpace(tier))
}

func IsTier(tier string) bool {
	switch Normalize(tier) {
	case TierFree, TierBasic, TierPro, TierPremium:
		return true
	}
	return false
}

// IsPaidTier reports whether tier can be bought at checkout.
func IsPaidTier(tier string) bool {
	t := Normalize(tier)
	return IsTier(t) && t != TierFree
}

// ResolveTier returns the tier to grant for a completed payment.
// Priority:
// 1. Explicit tier written into checkout metadata
// 2. Fallback inference by amount
func ResolveTier(explicit string, amount int64) string {
	if IsTier(explicit) {
		return Normalize(explicit)
	}
	return TierFromAmount(amount)
}

// TierFromAmount infers a tier from an amount in minor units. Boundaries
// map to the higher tier. Only used when checkout metadata carries no tier.
func TierFromAmount(amount int64) string {
	switch {
	case amount >= 999:
		return TierPremium
	case amount >= 299:
		return TierPro
	case amount >= 99:
		return TierBasic
	default:
		return TierFree
	}
}
