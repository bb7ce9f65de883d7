package coordinator

import (
	"github.com/j-veylop/usagewatch/internal/models"
)

type (
	// ReadingUpdatedEvent is emitted after a tick merges and publishes a
	// profile's canonical reading.
	ReadingUpdatedEvent struct {
		ProfileID string
		Reading   models.UsageReading
		Crossed   map[models.WindowKind][]float64
	}

	// ResetRecordedEvent is emitted when a window reset was detected and
	// its snapshot written to history.
	ResetRecordedEvent struct {
		ProfileID string
		Window    models.WindowKind
		Snapshot  models.UsageSnapshot
	}

	// ThresholdCrossedEvent is emitted once per threshold per window
	// lifetime.
	ThresholdCrossedEvent struct {
		ProfileID string
		Window    models.WindowKind
		Threshold float64
	}

	// SourceDegradedEvent signals that a credential source failed too
	// many consecutive times and likely needs re-authentication.
	// Advisory, not fatal.
	SourceDegradedEvent struct {
		ProfileID string
		Source    models.SourceKind
		Failures  int
	}

	// StoreWarningEvent signals a snapshot persistence failure. The
	// published reading is unaffected; only history recording was lost.
	StoreWarningEvent struct {
		Error     error
		ProfileID string
		Window    models.WindowKind
	}

	// AutoStartRequestedEvent asks the session-initiation collaborator
	// to open a fresh session after a reset.
	AutoStartRequestedEvent struct {
		ProfileID string
	}

	// ProfileActivatedEvent is emitted when auto-rotation switches the
	// active profile.
	ProfileActivatedEvent struct {
		ProfileID string
	}

	// NoEligibleProfileEvent is emitted when rotation found no candidate;
	// the current profile stays active.
	NoEligibleProfileEvent struct {
		ProfileID string
	}

	// ProfileSuspendedEvent is emitted when a profile has no usable
	// credentials and its polling is parked.
	ProfileSuspendedEvent struct {
		ProfileID string
	}

	// ErrorEvent is emitted for recoverable per-profile failures.
	ErrorEvent struct {
		Error     error
		ProfileID string
	}
)

// Event is the interface implemented by all coordinator events.
type Event interface {
	isCoordinatorEvent()
}

func (ReadingUpdatedEvent) isCoordinatorEvent()     {}
func (ResetRecordedEvent) isCoordinatorEvent()      {}
func (ThresholdCrossedEvent) isCoordinatorEvent()   {}
func (SourceDegradedEvent) isCoordinatorEvent()     {}
func (StoreWarningEvent) isCoordinatorEvent()       {}
func (AutoStartRequestedEvent) isCoordinatorEvent() {}
func (ProfileActivatedEvent) isCoordinatorEvent()   {}
func (NoEligibleProfileEvent) isCoordinatorEvent()  {}
func (ProfileSuspendedEvent) isCoordinatorEvent()   {}
func (ErrorEvent) isCoordinatorEvent()              {}
