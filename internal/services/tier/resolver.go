// Package tier resolves account capability strings into a capacity tier.
package tier

import (
	"strings"

	"github.com/j-veylop/usagewatch/internal/models"
)

// Resolve maps a set of account capability strings to a tier. Matching is
// case-insensitive substring with a fixed priority order; an unmatched but
// non-empty capability set defaults to pro (unknown-but-present
// capabilities are treated as paid). An empty set is free. Resolve never
// fails.
func Resolve(capabilities []string) models.AccountTier {
	if len(capabilities) == 0 {
		return models.TierFree
	}

	if matchAny(capabilities, "max") {
		return models.TierMax
	}
	if matchAny(capabilities, "enterprise") {
		return models.TierEnterprise
	}
	if matchAny(capabilities, "team") {
		return models.TierTeam
	}
	if matchAny(capabilities, "pro") || matchAny(capabilities, "raven") {
		return models.TierPro
	}

	return models.TierPro
}

func matchAny(capabilities []string, substr string) bool {
	for _, c := range capabilities {
		if strings.Contains(strings.ToLower(c), substr) {
			return true
		}
	}
	return false
}
