// Package coordinator orchestrates per-profile usage polling: fetching,
// merging, reset detection, history recording, threshold evaluation,
// auto-rotation, and observer fan-out.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/usagewatch/internal/config"
	"github.com/j-veylop/usagewatch/internal/logger"
	"github.com/j-veylop/usagewatch/internal/models"
	"github.com/j-veylop/usagewatch/internal/services/reset"
	"github.com/j-veylop/usagewatch/internal/services/rotation"
	"github.com/j-veylop/usagewatch/internal/services/thresholds"
	"github.com/j-veylop/usagewatch/internal/services/tier"
)

// Config holds coordinator behavior settings.
type Config struct {
	FetchTimeout    time.Duration
	DefaultInterval time.Duration
	DegradedAfter   int
	AutoRotate      bool
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:    10 * time.Second,
		DefaultInterval: 30 * time.Second,
		DegradedAfter:   3,
	}
}

// Coordinator owns one polling runner per profile and publishes the
// resulting canonical state to subscribers.
type Coordinator struct {
	mu          sync.RWMutex
	config      Config
	fetcher     UsageFetcher
	profiles    ProfileStore
	history     HistoryStore
	sink        NotificationSink
	engine      *thresholds.Engine
	runners     map[string]*runner
	subscribers []chan<- Event
	readings    map[string]*models.UsageReading
	failures    map[string]map[models.SourceKind]int
	suspended   map[string]bool
	snapshots   int
	closed      bool
}

// New creates a coordinator wired to its collaborators. A nil sink is
// replaced with a no-op.
func New(fetcher UsageFetcher, profileStore ProfileStore, history HistoryStore, sink NotificationSink, cfg Config) *Coordinator {
	if cfg.FetchTimeout == 0 {
		cfg = DefaultConfig()
	}
	if sink == nil {
		sink = nopSink{}
	}

	return &Coordinator{
		config:    cfg,
		fetcher:   fetcher,
		profiles:  profileStore,
		history:   history,
		sink:      sink,
		engine:    thresholds.NewEngine(),
		runners:   make(map[string]*runner),
		readings:  make(map[string]*models.UsageReading),
		failures:  make(map[string]map[models.SourceKind]int),
		suspended: make(map[string]bool),
	}
}

// Start begins polling every profile in the store.
func (c *Coordinator) Start() {
	c.Reconcile()
}

// Reconcile aligns the runner set with the profile store: new profiles
// get a runner, removed ones stop, and an interval change cancels the
// pending timer and re-arms it. Invoked at start and whenever the store
// reports a change.
func (c *Coordinator) Reconcile() {
	snapshot := c.profiles.Snapshot()

	seen := make(map[string]bool, len(snapshot))
	for _, profile := range snapshot {
		seen[profile.ID] = true

		interval := profile.RefreshInterval
		if interval == 0 {
			interval = c.config.DefaultInterval
		}
		if err := config.ValidateRefreshInterval(interval); err != nil {
			c.broadcast(ErrorEvent{ProfileID: profile.ID, Error: err})
			c.stopRunner(profile.ID)
			continue
		}

		c.mu.Lock()
		existing := c.runners[profile.ID]
		needsRestart := existing != nil && existing.interval != interval
		if needsRestart {
			delete(c.runners, profile.ID)
		}
		c.mu.Unlock()

		// Stopping waits for an in-flight tick, which may broadcast;
		// never hold the coordinator lock across it.
		if needsRestart {
			existing.stop()
			existing = nil
		}
		if existing == nil {
			r := newRunner(c, profile.ID, interval)
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			c.runners[profile.ID] = r
			c.mu.Unlock()
			r.start()
		}
	}

	c.mu.Lock()
	var removed []string
	for id := range c.runners {
		if !seen[id] {
			removed = append(removed, id)
		}
	}
	c.mu.Unlock()

	for _, id := range removed {
		c.stopRunner(id)
		c.engine.Forget(id)
		c.mu.Lock()
		delete(c.readings, id)
		delete(c.failures, id)
		delete(c.suspended, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) stopRunner(id string) {
	c.mu.Lock()
	r := c.runners[id]
	delete(c.runners, id)
	c.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

// RefreshNow requests an immediate refresh for a profile and waits for
// the result. A request arriving while a fetch is already in flight is
// coalesced: no second fetch starts, the caller receives the in-flight
// result.
func (c *Coordinator) RefreshNow(profileID string) error {
	c.mu.RLock()
	r := c.runners[profileID]
	c.mu.RUnlock()
	if r == nil {
		return fmt.Errorf("profile not tracked: %s", profileID)
	}
	return r.requestRefresh()
}

// Reading returns the last published reading for a profile, or nil.
func (c *Coordinator) Reading(profileID string) *models.UsageReading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if reading := c.readings[profileID]; reading != nil {
		clone := reading.Clone()
		return &clone
	}
	return nil
}

// Subscribe creates a channel receiving coordinator events.
func (c *Coordinator) Subscribe() chan Event {
	ch := make(chan Event, 50)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (c *Coordinator) Unsubscribe(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subscribers {
		if sub == (chan<- Event)(ch) {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// broadcast sends an event to all subscribers without blocking. A full
// subscriber channel drops the event for that subscriber only.
func (c *Coordinator) broadcast(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sub := range c.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// Stats summarizes coordinator state.
type Stats struct {
	ProfilesTracked   int
	SnapshotsRecorded int
	DegradedSources   int
}

// GetStats returns current statistics.
func (c *Coordinator) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		ProfilesTracked:   len(c.runners),
		SnapshotsRecorded: c.snapshots,
	}
	for _, sources := range c.failures {
		for _, count := range sources {
			if count >= c.config.DegradedAfter {
				stats.DegradedSources++
			}
		}
	}
	return stats
}

// Close stops all runners and closes subscriber channels.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	runners := c.runners
	c.runners = make(map[string]*runner)
	subscribers := c.subscribers
	c.subscribers = nil
	c.mu.Unlock()

	for _, r := range runners {
		r.stop()
	}
	for _, sub := range subscribers {
		close(sub)
	}
	return nil
}

// refreshProfile performs one tick for a profile: fetch, merge, detect,
// record, evaluate, rotate, publish. Any failure returns to idle without
// mutating cached state beyond the stale-but-present merge.
func (c *Coordinator) refreshProfile(profileID string) error {
	profile := c.lookupProfile(profileID)
	if profile == nil {
		// The profile disappeared while a tick was pending; discard.
		return fmt.Errorf("profile not found: %s", profileID)
	}

	usable := usableSources(*profile)
	if len(usable) == 0 {
		c.markSuspended(*profile, true)
		return errNoUsableCredentials
	}
	c.markSuspended(*profile, false)

	results, fetchErrs := c.fetchSources(*profile, usable)
	c.trackSourceHealth(profileID, results, fetchErrs)

	if len(results) == 0 {
		err := fmt.Errorf("all sources failed for profile %s", profileID)
		c.broadcast(ErrorEvent{ProfileID: profileID, Error: err})
		return err
	}

	now := time.Now()
	previous := profile.LastReading
	merged := mergeResults(previous, results, now)

	// Cache the resolved tier from the freshest capability set.
	if caps := latestCapabilities(results); len(caps) > 0 {
		resolved := tier.Resolve(caps)
		profile.Tier = &resolved
	}

	resetEvents := reset.Detect(previous, merged)
	resetWindows := make(map[models.WindowKind]bool, len(resetEvents))
	for _, event := range resetEvents {
		resetWindows[event.Window] = true
		c.recordSnapshot(profileID, now, event)
		c.engine.Reset(profileID, event.Window)
	}

	crossed := c.evaluateThresholds(*profile, merged, resetWindows)

	if resetWindows[models.WindowSession] && profile.AutoStartSession {
		c.sink.AutoStartRequested(profileID)
		c.broadcast(AutoStartRequestedEvent{ProfileID: profileID})
	}

	if c.config.AutoRotate && profile.ActiveForDisplay && sessionExhausted(merged) {
		if c.rotate(*profile) {
			// SetActiveProfile already moved the active flag in the
			// store; the Save below must not re-assert it here, or the
			// exhausted profile stays active and rotation re-fires
			// every tick.
			profile.ActiveForDisplay = false
			profile.LastUsed = now
		}
	}

	profile.LastReading = &merged
	if profile.ActiveForDisplay {
		profile.LastUsed = now
	}
	if err := c.profiles.Save(*profile); err != nil {
		logger.Error("failed to persist profile state", "profile", profileID, "error", err)
	}

	c.mu.Lock()
	published := merged.Clone()
	c.readings[profileID] = &published
	c.mu.Unlock()

	c.broadcast(ReadingUpdatedEvent{ProfileID: profileID, Reading: merged, Crossed: crossed})
	return nil
}

// fetchSources runs one fetch per usable credential source concurrently
// and joins them. A source failure never cancels its siblings.
func (c *Coordinator) fetchSources(profile models.Profile, sources []models.CredentialSource) (map[models.SourceKind]*FetchResult, map[models.SourceKind]error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[models.SourceKind]*FetchResult)
	fetchErrs := make(map[models.SourceKind]error)

	var g errgroup.Group
	for _, source := range sources {
		g.Go(func() error {
			result, err := c.fetcher.Fetch(ctx, source)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fetchErrs[source.Kind] = err
				return nil
			}
			results[source.Kind] = result
			return nil
		})
	}
	_ = g.Wait()

	return results, fetchErrs
}

// trackSourceHealth updates per-source consecutive failure counts and
// surfaces a degraded signal when a source crosses the failure threshold.
func (c *Coordinator) trackSourceHealth(profileID string, results map[models.SourceKind]*FetchResult, fetchErrs map[models.SourceKind]error) {
	c.mu.Lock()
	sources := c.failures[profileID]
	if sources == nil {
		sources = make(map[models.SourceKind]int)
		c.failures[profileID] = sources
	}

	var degraded []models.SourceKind
	for kind := range results {
		sources[kind] = 0
	}
	for kind, err := range fetchErrs {
		sources[kind]++
		logger.Warn("source fetch failed", "profile", profileID, "source", string(kind), "failures", sources[kind], "error", err)
		if sources[kind] == c.config.DegradedAfter {
			degraded = append(degraded, kind)
		}
	}
	c.mu.Unlock()

	for _, kind := range degraded {
		c.broadcast(SourceDegradedEvent{ProfileID: profileID, Source: kind, Failures: c.config.DegradedAfter})
	}
}

// recordSnapshot persists one reset event. A store failure is surfaced
// as a warning and the event is dropped: it is not re-derivable once the
// tick completes, and the published reading is unaffected.
func (c *Coordinator) recordSnapshot(profileID string, now time.Time, event models.ResetEvent) {
	snap := models.SnapshotFromReset(uuid.NewString(), now, event)
	if err := c.history.InsertSnapshot(profileID, snap); err != nil {
		logger.Error("failed to record usage snapshot", "profile", profileID, "window", event.Window.String(), "error", err)
		c.broadcast(StoreWarningEvent{ProfileID: profileID, Window: event.Window, Error: err})
		return
	}

	c.mu.Lock()
	c.snapshots++
	c.mu.Unlock()

	c.broadcast(ResetRecordedEvent{ProfileID: profileID, Window: event.Window, Snapshot: snap})
}

// evaluateThresholds runs the threshold engine over the usage windows
// that did not just reset, plus the budget thresholds for the billing
// cycle. Malformed threshold configuration is rejected with an error
// event, never clamped.
func (c *Coordinator) evaluateThresholds(profile models.Profile, reading models.UsageReading, resetWindows map[models.WindowKind]bool) map[models.WindowKind][]float64 {
	crossed := make(map[models.WindowKind][]float64)
	if !profile.Notifications.Enabled {
		return crossed
	}

	usageThresholds := profile.Notifications.Thresholds
	if len(usageThresholds) == 0 {
		usageThresholds = thresholds.DefaultUsageThresholds
	}
	if err := config.ValidateThresholds(usageThresholds); err != nil {
		c.broadcast(ErrorEvent{ProfileID: profile.ID, Error: err})
		return crossed
	}

	for _, window := range []models.WindowKind{models.WindowSession, models.WindowWeekly} {
		// A window that just reset starts this tick at zero; evaluating
		// the old percentage would re-fire immediately.
		if resetWindows[window] {
			continue
		}
		fired := c.engine.Evaluate(profile.ID, window, reading.Percent(window), usageThresholds)
		for _, threshold := range fired {
			c.sink.ThresholdCrossed(profile.ID, window, threshold)
			c.broadcast(ThresholdCrossedEvent{ProfileID: profile.ID, Window: window, Threshold: threshold})
		}
		if len(fired) > 0 {
			crossed[window] = fired
		}
	}

	if profile.CheckOverage && profile.MonthlyBudget != nil && *profile.MonthlyBudget > 0 && !resetWindows[models.WindowBillingCycle] {
		budgetThresholds := profile.BudgetThresholds
		if len(budgetThresholds) == 0 {
			budgetThresholds = thresholds.DefaultBudgetThresholds
		}
		if err := config.ValidateThresholds(budgetThresholds); err != nil {
			c.broadcast(ErrorEvent{ProfileID: profile.ID, Error: err})
			return crossed
		}

		spendPercent := reading.Billing.SpendAmount / *profile.MonthlyBudget * 100
		fired := c.engine.Evaluate(profile.ID, models.WindowBillingCycle, spendPercent, budgetThresholds)
		for _, threshold := range fired {
			c.sink.ThresholdCrossed(profile.ID, models.WindowBillingCycle, threshold)
			c.broadcast(ThresholdCrossedEvent{ProfileID: profile.ID, Window: models.WindowBillingCycle, Threshold: threshold})
		}
		if len(fired) > 0 {
			crossed[models.WindowBillingCycle] = fired
		}
	}

	return crossed
}

// rotate hands the active slot to the best eligible profile and reports
// whether a successor was activated. With no candidate the current
// profile stays active and the condition is surfaced instead.
func (c *Coordinator) rotate(current models.Profile) bool {
	next := rotation.SelectNext(c.profiles.Snapshot(), current)
	if next == nil {
		c.broadcast(NoEligibleProfileEvent{ProfileID: current.ID})
		return false
	}
	if err := c.profiles.SetActiveProfile(next.ID); err != nil {
		logger.Error("failed to activate profile", "profile", next.ID, "error", err)
		return false
	}
	c.sink.ProfileActivated(next.ID)
	c.broadcast(ProfileActivatedEvent{ProfileID: next.ID})
	return true
}

// markSuspended tracks the suspended state transition for a profile and
// emits the suspension event exactly once per transition. Rotation also
// runs when the active profile loses its credentials.
func (c *Coordinator) markSuspended(profile models.Profile, suspended bool) {
	c.mu.Lock()
	was := c.suspended[profile.ID]
	c.suspended[profile.ID] = suspended
	c.mu.Unlock()

	if suspended && !was {
		c.broadcast(ProfileSuspendedEvent{ProfileID: profile.ID})
		if c.config.AutoRotate && profile.ActiveForDisplay {
			c.rotate(profile)
		}
	}
}

func (c *Coordinator) lookupProfile(profileID string) *models.Profile {
	for _, profile := range c.profiles.Snapshot() {
		if profile.ID == profileID {
			return &profile
		}
	}
	return nil
}

func usableSources(profile models.Profile) []models.CredentialSource {
	var usable []models.CredentialSource
	for _, source := range profile.Credentials {
		if source.Usable() {
			usable = append(usable, source)
		}
	}
	return usable
}

func sessionExhausted(reading models.UsageReading) bool {
	return reading.Session.Percent >= 100
}

type nopSink struct{}

func (nopSink) ThresholdCrossed(string, models.WindowKind, float64) {}
func (nopSink) AutoStartRequested(string)                           {}
func (nopSink) ProfileActivated(string)                             {}
