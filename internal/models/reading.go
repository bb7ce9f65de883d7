// Package models defines data structures and domain types.
package models

import (
	"maps"
	"time"
)

// WindowKind identifies one of the independently tracked usage windows.
type WindowKind string

const (
	// WindowSession is the short rolling session window.
	WindowSession WindowKind = "session"
	// WindowWeekly is the weekly usage window.
	WindowWeekly WindowKind = "weekly"
	// WindowBillingCycle is the monthly spend-tracking window.
	WindowBillingCycle WindowKind = "billingCycle"
)

// WindowKinds lists all window kinds in detection order.
var WindowKinds = []WindowKind{WindowSession, WindowWeekly, WindowBillingCycle}

// String returns the window kind name.
func (w WindowKind) String() string {
	return string(w)
}

// SessionWindow holds the short rolling window's usage figures.
type SessionWindow struct {
	ResetsAt   time.Time `json:"resetsAt"`
	TokensUsed int64     `json:"tokensUsed"`
	TokenLimit int64     `json:"tokenLimit"`
	Percent    float64   `json:"percent"`
}

// WeeklyWindow holds the weekly window's usage figures, optionally broken
// down per model.
type WeeklyWindow struct {
	ResetsAt time.Time          `json:"resetsAt"`
	PerModel map[string]float64 `json:"perModel,omitempty"`
	Total    int64              `json:"total"`
	Percent  float64            `json:"percent"`
}

// BillingWindow holds the monthly billing cycle's spend figures.
type BillingWindow struct {
	CycleEndsAt    time.Time `json:"cycleEndsAt"`
	Currency       string    `json:"currency,omitempty"`
	SpendAmount    float64   `json:"spendAmount"`
	PrepaidCredits float64   `json:"prepaidCredits"`
}

// UsageReading is the canonical, already-normalized usage snapshot for a
// profile at a point in time. Percentages are clamped to [0,100].
type UsageReading struct {
	FetchedAt time.Time     `json:"fetchedAt"`
	Session   SessionWindow `json:"session"`
	Weekly    WeeklyWindow  `json:"weekly"`
	Billing   BillingWindow `json:"billing"`
}

// ClampPercent clamps a percentage into [0,100].
func ClampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Normalize returns a copy of the reading with all percentages clamped.
// The receiver is left untouched, including its per-model map.
func (r UsageReading) Normalize() UsageReading {
	r.Session.Percent = ClampPercent(r.Session.Percent)
	r.Weekly.Percent = ClampPercent(r.Weekly.Percent)
	if r.Weekly.PerModel != nil {
		clamped := make(map[string]float64, len(r.Weekly.PerModel))
		for model, pct := range r.Weekly.PerModel {
			clamped[model] = ClampPercent(pct)
		}
		r.Weekly.PerModel = clamped
	}
	return r
}

// ResetAt returns the reading's reset boundary for the given window kind.
func (r UsageReading) ResetAt(kind WindowKind) time.Time {
	switch kind {
	case WindowSession:
		return r.Session.ResetsAt
	case WindowWeekly:
		return r.Weekly.ResetsAt
	case WindowBillingCycle:
		return r.Billing.CycleEndsAt
	default:
		return time.Time{}
	}
}

// Percent returns the reading's utilization percentage for a usage
// window. The billing cycle has no percentage of its own; callers derive
// one from the configured budget.
func (r UsageReading) Percent(kind WindowKind) float64 {
	switch kind {
	case WindowSession:
		return r.Session.Percent
	case WindowWeekly:
		return r.Weekly.Percent
	default:
		return 0
	}
}

// Clone returns a deep copy of the reading.
func (r UsageReading) Clone() UsageReading {
	clone := r
	if r.Weekly.PerModel != nil {
		clone.Weekly.PerModel = make(map[string]float64, len(r.Weekly.PerModel))
		maps.Copy(clone.Weekly.PerModel, r.Weekly.PerModel)
	}
	return clone
}
