// Package rotation chooses which profile should become active when the
// current one runs out of session headroom.
package rotation

import (
	"github.com/samber/lo"

	"github.com/j-veylop/usagewatch/internal/models"
)

// SelectNext picks the best candidate to activate in place of current:
// profiles with auto-rotate enabled and usable session credentials,
// ranked by tier weight, ties going to the profile used longest ago so
// load spreads across equally-weighted accounts. Returns nil when no
// profile is eligible; the caller keeps the current profile active and
// surfaces the condition instead of disabling rotation.
func SelectNext(profiles []models.Profile, current models.Profile) *models.Profile {
	candidates := lo.Filter(profiles, func(p models.Profile, _ int) bool {
		return p.ID != current.ID && p.AutoRotate && p.HasUsableSessionCredentials()
	})
	if len(candidates) == 0 {
		return nil
	}

	best := lo.MinBy(candidates, func(a, b models.Profile) bool {
		if a.TierWeight() != b.TierWeight() {
			return a.TierWeight() > b.TierWeight()
		}
		return a.LastUsed.Before(b.LastUsed)
	})
	return &best
}
