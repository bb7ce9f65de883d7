// Package models defines data structures and domain types.
package models

import "time"

// TimeRange selects how far back a history query reaches.
type TimeRange int

const (
	// TimeRange24Hours covers the last 24 hours.
	TimeRange24Hours TimeRange = iota
	// TimeRange7Days covers the last 7 days.
	TimeRange7Days
	// TimeRange30Days covers the last 30 days.
	TimeRange30Days
	// TimeRangeAllTime covers all recorded history.
	TimeRangeAllTime
)

// String returns the display name for a time range.
func (t TimeRange) String() string {
	switch t {
	case TimeRange24Hours:
		return "24 Hours"
	case TimeRange7Days:
		return "7 Days"
	case TimeRange30Days:
		return "30 Days"
	case TimeRangeAllTime:
		return "All Time"
	default:
		return "Unknown"
	}
}

// Days returns the number of days for the time range (0 = unlimited).
func (t TimeRange) Days() int {
	switch t {
	case TimeRange24Hours:
		return 1
	case TimeRange7Days:
		return 7
	case TimeRange30Days:
		return 30
	case TimeRangeAllTime:
		return 0
	default:
		return 30
	}
}

// CutoffFrom returns the earliest timestamp included in the range,
// relative to now. The zero time means no lower bound.
func (t TimeRange) CutoffFrom(now time.Time) time.Time {
	days := t.Days()
	if days == 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}
