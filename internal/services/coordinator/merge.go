package coordinator

import (
	"time"

	"github.com/j-veylop/usagewatch/internal/models"
)

// mergeResults folds per-source fetch results over the previous canonical
// reading. A window is overwritten only by a source that actually
// reported it; a failed or silent source leaves the last-known-good
// fields in place rather than nulling them (the stale-but-present
// policy). Results are folded in models.SourceKinds order, so the most
// recently fetched source of each window wins.
func mergeResults(previous *models.UsageReading, results map[models.SourceKind]*FetchResult, now time.Time) models.UsageReading {
	var merged models.UsageReading
	if previous != nil {
		merged = previous.Clone()
	}
	merged.FetchedAt = now

	for _, kind := range models.SourceKinds {
		result := results[kind]
		if result == nil {
			continue
		}
		reading := result.Reading.Normalize()

		if reportsSession(reading) {
			merged.Session = reading.Session
		}
		if reportsWeekly(reading) {
			merged.Weekly = reading.Clone().Weekly
		}
		if reportsBilling(reading) {
			merged.Billing = reading.Billing
		}
	}

	return merged
}

func reportsSession(r models.UsageReading) bool {
	return !r.Session.ResetsAt.IsZero() || r.Session.TokensUsed > 0 || r.Session.TokenLimit > 0
}

func reportsWeekly(r models.UsageReading) bool {
	return !r.Weekly.ResetsAt.IsZero() || r.Weekly.Total > 0 || len(r.Weekly.PerModel) > 0
}

func reportsBilling(r models.UsageReading) bool {
	return !r.Billing.CycleEndsAt.IsZero() || r.Billing.SpendAmount > 0 || r.Billing.PrepaidCredits > 0
}

// latestCapabilities picks the capability set from the merged results,
// preferring sources later in the fold order so the freshest overwrite
// wins, matching the reading merge.
func latestCapabilities(results map[models.SourceKind]*FetchResult) []string {
	var capabilities []string
	for _, kind := range models.SourceKinds {
		if result := results[kind]; result != nil && len(result.Capabilities) > 0 {
			capabilities = result.Capabilities
		}
	}
	return capabilities
}
