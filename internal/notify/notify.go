// Package notify provides notification sink implementations.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/j-veylop/usagewatch/internal/logger"
	"github.com/j-veylop/usagewatch/internal/models"
)

// DesktopSink delivers notifications through the OS notification center.
// Delivery is fire-and-forget; a failed notification is logged and
// dropped.
type DesktopSink struct{}

// ThresholdCrossed notifies about a usage threshold crossing.
func (DesktopSink) ThresholdCrossed(profileID string, window models.WindowKind, threshold float64) {
	title := fmt.Sprintf("Usage Alert: %s", profileID)
	body := fmt.Sprintf("%s window crossed %.0f%%", window, threshold)
	if err := beeep.Notify(title, body, ""); err != nil {
		logger.Warn("failed to deliver notification", "profile", profileID, "error", err)
	}
}

// AutoStartRequested notifies that a new session should be started.
func (DesktopSink) AutoStartRequested(profileID string) {
	title := fmt.Sprintf("Session Reset: %s", profileID)
	if err := beeep.Notify(title, "Session window reset, auto-start requested.", ""); err != nil {
		logger.Warn("failed to deliver notification", "profile", profileID, "error", err)
	}
}

// ProfileActivated notifies that rotation switched the active profile.
func (DesktopSink) ProfileActivated(profileID string) {
	title := fmt.Sprintf("Profile Activated: %s", profileID)
	if err := beeep.Notify(title, "Auto-rotation switched the active profile.", ""); err != nil {
		logger.Warn("failed to deliver notification", "profile", profileID, "error", err)
	}
}

// LogSink writes notifications to the structured log, for headless runs.
type LogSink struct{}

// ThresholdCrossed logs a usage threshold crossing.
func (LogSink) ThresholdCrossed(profileID string, window models.WindowKind, threshold float64) {
	logger.Info("threshold crossed", "profile", profileID, "window", window.String(), "threshold", threshold)
}

// AutoStartRequested logs an auto-start request.
func (LogSink) AutoStartRequested(profileID string) {
	logger.Info("auto-start requested", "profile", profileID)
}

// ProfileActivated logs an active-profile change.
func (LogSink) ProfileActivated(profileID string) {
	logger.Info("profile activated", "profile", profileID)
}
