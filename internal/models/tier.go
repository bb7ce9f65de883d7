// Package models defines data structures and domain types.
package models

// AccountTier represents the account's capacity class. Tiers are derived
// from capability strings, never hand-set.
type AccountTier string

const (
	// TierFree is an account with no paid capabilities.
	TierFree AccountTier = "free"
	// TierPro is the standard paid tier.
	TierPro AccountTier = "pro"
	// TierMax is the high-capacity individual tier.
	TierMax AccountTier = "max"
	// TierTeam is the team plan tier.
	TierTeam AccountTier = "team"
	// TierEnterprise is the enterprise plan tier.
	TierEnterprise AccountTier = "enterprise"
)

// tierWeights maps each tier to its relative capacity weight, used to
// rank profiles for auto-rotation.
var tierWeights = map[AccountTier]float64{
	TierFree:       0.2,
	TierPro:        1.0,
	TierMax:        5.0,
	TierTeam:       5.0,
	TierEnterprise: 10.0,
}

// Weight returns the tier's relative capacity weight. Unknown tiers rank
// as free.
func (t AccountTier) Weight() float64 {
	if w, ok := tierWeights[t]; ok {
		return w
	}
	return tierWeights[TierFree]
}

// String returns the tier name.
func (t AccountTier) String() string {
	return string(t)
}
