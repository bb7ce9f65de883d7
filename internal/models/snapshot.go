// Package models defines data structures and domain types.
package models

import "time"

// SnapshotTolerance bounds how far a snapshot's triggering reset time may
// sit past its recording time before the snapshot is considered
// inconsistent (clock skew or a mid-flight fetch).
const SnapshotTolerance = 60 * time.Second

// ResetEvent is emitted when a usage window's boundary moves forward.
// Final carries the reading observed just before the window closed, so
// history preserves the final utilization of the closed window.
type ResetEvent struct {
	ResetAt time.Time
	Final   UsageReading
	Window  WindowKind
}

// UsageSnapshot is the persisted record of a window's final values,
// captured at the moment it reset. Only the fields relevant to the
// snapshot's window kind are populated; the rest stay nil. Immutable once
// recorded.
type UsageSnapshot struct {
	Timestamp      time.Time          `json:"timestamp"`
	TriggeredBy    time.Time          `json:"triggeredBy"`
	TokensUsed     *int64             `json:"tokensUsed,omitempty"`
	TokenLimit     *int64             `json:"tokenLimit,omitempty"`
	Percent        *float64           `json:"percent,omitempty"`
	WeeklyTotal    *int64             `json:"weeklyTotal,omitempty"`
	PerModel       map[string]float64 `json:"perModel,omitempty"`
	SpendAmount    *float64           `json:"spendAmount,omitempty"`
	PrepaidCredits *float64           `json:"prepaidCredits,omitempty"`
	ID             string             `json:"id"`
	Currency       string             `json:"currency,omitempty"`
	Window         WindowKind         `json:"windowKind"`
}

// Consistent reports whether the snapshot's triggering reset time is
// within tolerance of its recording time. Inconsistent snapshots are
// excluded from queries rather than deleted.
func (s UsageSnapshot) Consistent() bool {
	return !s.TriggeredBy.After(s.Timestamp.Add(SnapshotTolerance))
}

// SnapshotFromReset builds the persisted snapshot for a reset event,
// carrying only the closed window's fields.
func SnapshotFromReset(id string, recordedAt time.Time, event ResetEvent) UsageSnapshot {
	snap := UsageSnapshot{
		ID:          id,
		Timestamp:   recordedAt,
		Window:      event.Window,
		TriggeredBy: event.ResetAt,
	}

	switch event.Window {
	case WindowSession:
		used, limit, pct := event.Final.Session.TokensUsed, event.Final.Session.TokenLimit, event.Final.Session.Percent
		snap.TokensUsed, snap.TokenLimit, snap.Percent = &used, &limit, &pct
	case WindowWeekly:
		total, pct := event.Final.Weekly.Total, event.Final.Weekly.Percent
		snap.WeeklyTotal, snap.Percent = &total, &pct
		if len(event.Final.Weekly.PerModel) > 0 {
			snap.PerModel = make(map[string]float64, len(event.Final.Weekly.PerModel))
			for model, p := range event.Final.Weekly.PerModel {
				snap.PerModel[model] = p
			}
		}
	case WindowBillingCycle:
		spend, credits := event.Final.Billing.SpendAmount, event.Final.Billing.PrepaidCredits
		snap.SpendAmount, snap.PrepaidCredits = &spend, &credits
		snap.Currency = event.Final.Billing.Currency
	}

	return snap
}
