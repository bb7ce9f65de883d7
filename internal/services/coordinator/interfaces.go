package coordinator

import (
	"context"

	"github.com/j-veylop/usagewatch/internal/models"
)

// FetchResult is what one credential source reports: the windows it
// knows about, plus the account capability strings used to resolve the
// tier. Windows the source does not serve are left zero.
type FetchResult struct {
	Reading      models.UsageReading
	Capabilities []string
}

// UsageFetcher retrieves a normalized usage reading for one credential
// source. Implementations must honor the context deadline; the
// coordinator treats an exceeded deadline as a fetch failure.
type UsageFetcher interface {
	Fetch(ctx context.Context, source models.CredentialSource) (*FetchResult, error)
}

// ProfileStore supplies the immutable per-tick profile snapshot and
// persists coordinator-driven mutations. The coordinator never touches
// the underlying storage directly.
type ProfileStore interface {
	Snapshot() []models.Profile
	Save(profile models.Profile) error
	SetActiveProfile(id string) error
}

// HistoryStore records snapshots derived from reset events.
type HistoryStore interface {
	InsertSnapshot(profileID string, snapshot models.UsageSnapshot) error
}

// NotificationSink receives threshold-crossing and side-effect events.
// Delivery is fire-and-forget from the coordinator's perspective.
type NotificationSink interface {
	ThresholdCrossed(profileID string, window models.WindowKind, threshold float64)
	AutoStartRequested(profileID string)
	ProfileActivated(profileID string)
}
