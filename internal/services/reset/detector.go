// Package reset classifies window boundary transitions between two
// consecutive usage readings.
package reset

import (
	"github.com/j-veylop/usagewatch/internal/models"
)

// Detect compares the previous and current readings and returns one
// ResetEvent per window whose reset boundary moved forward. A window's
// reset is signaled only by that forward jump; the event carries the
// previous reading's values, the final state of the window that just
// closed. A nil previous reading never produces events: there is no
// closed window to record.
//
// If the server rolled a window over before this process ever observed
// the prior state (current reports a fresh window under the same reset
// timestamp), the closing values were never seen and no event fires.
// That is an accepted limitation, not something to paper over.
func Detect(previous *models.UsageReading, current models.UsageReading) []models.ResetEvent {
	if previous == nil {
		return nil
	}

	var events []models.ResetEvent
	for _, kind := range models.WindowKinds {
		prevAt := previous.ResetAt(kind)
		currAt := current.ResetAt(kind)
		if prevAt.IsZero() || currAt.IsZero() {
			continue
		}
		if currAt.After(prevAt) {
			events = append(events, models.ResetEvent{
				Window:  kind,
				ResetAt: currAt,
				Final:   previous.Clone(),
			})
		}
	}
	return events
}
