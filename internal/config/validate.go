package config

import (
	"errors"
	"fmt"
	"time"
)

// Configuration errors. Malformed settings are rejected at the point of
// change, never silently clamped.
var (
	// ErrIntervalOutOfRange is returned for refresh intervals outside [5s,120s].
	ErrIntervalOutOfRange = errors.New("refresh interval out of range")

	// ErrNoThresholds is returned for an empty threshold list.
	ErrNoThresholds = errors.New("no thresholds configured")

	// ErrThresholdOutOfRange is returned for thresholds outside (0,100].
	ErrThresholdOutOfRange = errors.New("threshold out of range")

	// ErrThresholdsNotAscending is returned when thresholds are not strictly ascending.
	ErrThresholdsNotAscending = errors.New("thresholds not strictly ascending")
)

// Refresh interval bounds.
const (
	MinRefreshInterval = 5 * time.Second
	MaxRefreshInterval = 120 * time.Second
)

// ValidateRefreshInterval checks that a per-profile refresh interval is
// within [5s, 120s].
func ValidateRefreshInterval(interval time.Duration) error {
	if interval < MinRefreshInterval || interval > MaxRefreshInterval {
		return fmt.Errorf("%w: %s (allowed %s to %s)",
			ErrIntervalOutOfRange, interval, MinRefreshInterval, MaxRefreshInterval)
	}
	return nil
}

// ValidateThresholds checks that a threshold list is non-empty, strictly
// ascending, distinct, and within (0,100].
func ValidateThresholds(thresholds []float64) error {
	if len(thresholds) == 0 {
		return ErrNoThresholds
	}

	prev := 0.0
	for _, t := range thresholds {
		if t <= 0 || t > 100 {
			return fmt.Errorf("%w: %v", ErrThresholdOutOfRange, t)
		}
		if t <= prev {
			return fmt.Errorf("%w: %v after %v", ErrThresholdsNotAscending, t, prev)
		}
		prev = t
	}
	return nil
}
