package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/j-veylop/usagewatch/internal/config"
	"github.com/j-veylop/usagewatch/internal/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	results map[models.SourceKind]*FetchResult
	errs    map[models.SourceKind]error
	calls   int

	// When set, Fetch signals started and blocks until release is closed.
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, source models.CredentialSource) (*FetchResult, error) {
	f.mu.Lock()
	f.calls++
	started := f.started
	release := f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[source.Kind]; err != nil {
		return nil, err
	}
	if result := f.results[source.Kind]; result != nil {
		clone := *result
		return &clone, nil
	}
	return nil, errors.New("unexpected source")
}

func (f *fakeFetcher) set(kind models.SourceKind, result *FetchResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[models.SourceKind]*FetchResult)
	}
	if f.errs == nil {
		f.errs = make(map[models.SourceKind]error)
	}
	f.results[kind] = result
	f.errs[kind] = err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu        sync.Mutex
	profiles  []models.Profile
	activated []string
}

func (s *fakeStore) Snapshot() []models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Profile, len(s.profiles))
	for i := range s.profiles {
		out[i] = s.profiles[i].Clone()
	}
	return out
}

func (s *fakeStore) Save(profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.profiles {
		if s.profiles[i].ID == profile.ID {
			s.profiles[i] = profile.Clone()
			return nil
		}
	}
	return errors.New("unknown profile")
}

func (s *fakeStore) SetActiveProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = append(s.activated, id)
	for i := range s.profiles {
		s.profiles[i].ActiveForDisplay = s.profiles[i].ID == id
	}
	return nil
}

func (s *fakeStore) get(id string) models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			return s.profiles[i].Clone()
		}
	}
	return models.Profile{}
}

type insertedSnapshot struct {
	profileID string
	snapshot  models.UsageSnapshot
}

type fakeHistory struct {
	mu       sync.Mutex
	inserted []insertedSnapshot
	failWith error
}

func (h *fakeHistory) InsertSnapshot(profileID string, snapshot models.UsageSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return h.failWith
	}
	h.inserted = append(h.inserted, insertedSnapshot{profileID: profileID, snapshot: snapshot})
	return nil
}

func (h *fakeHistory) snapshots() []insertedSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]insertedSnapshot(nil), h.inserted...)
}

type crossing struct {
	profileID string
	window    models.WindowKind
	threshold float64
}

type fakeSink struct {
	mu         sync.Mutex
	crossings  []crossing
	autoStarts []string
	activated  []string
}

func (s *fakeSink) ThresholdCrossed(profileID string, window models.WindowKind, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crossings = append(s.crossings, crossing{profileID: profileID, window: window, threshold: threshold})
}

func (s *fakeSink) AutoStartRequested(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoStarts = append(s.autoStarts, profileID)
}

func (s *fakeSink) ProfileActivated(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = append(s.activated, profileID)
}

func (s *fakeSink) crossed() []crossing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crossing(nil), s.crossings...)
}

func webProfile(id string) models.Profile {
	return models.Profile{
		ID:   id,
		Name: id,
		Credentials: []models.CredentialSource{
			{Kind: models.SourceWeb, Handle: "session-" + id},
		},
		Notifications:   models.NotificationConfig{Enabled: true},
		RefreshInterval: 120 * time.Second,
		AddedAt:         time.Now().Add(-time.Hour),
	}
}

func sessionResult(percent float64, resetsAt time.Time) *FetchResult {
	return &FetchResult{
		Reading: models.UsageReading{
			Session: models.SessionWindow{
				ResetsAt:   resetsAt,
				TokensUsed: int64(percent * 1000),
				TokenLimit: 100000,
				Percent:    percent,
			},
		},
	}
}

func newTestCoordinator(t *testing.T, store *fakeStore, fetcher *fakeFetcher, history *fakeHistory, sink *fakeSink, cfg Config) *Coordinator {
	t.Helper()
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = time.Second
	}
	if cfg.DefaultInterval == 0 {
		cfg.DefaultInterval = 120 * time.Second
	}
	if cfg.DegradedAfter == 0 {
		cfg.DegradedAfter = 3
	}
	c := New(fetcher, store, history, sink, cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func drainEvents(ch chan Event) []Event {
	var events []Event
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestRefreshFiresThresholdsOnce(t *testing.T) {
	store := &fakeStore{profiles: []models.Profile{webProfile("p1")}}
	fetcher := &fakeFetcher{}
	sink := &fakeSink{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, sink, Config{})

	resetsAt := time.Now().Add(2 * time.Hour)
	fetcher.set(models.SourceWeb, sessionResult(97, resetsAt), nil)

	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("refreshProfile() error = %v", err)
	}

	got := sink.crossed()
	want := []float64{75, 90, 95}
	if len(got) != len(want) {
		t.Fatalf("crossings = %d, want %d", len(got), len(want))
	}
	for i, threshold := range want {
		if got[i].threshold != threshold || got[i].window != models.WindowSession {
			t.Errorf("crossing[%d] = %+v, want session/%v", i, got[i], threshold)
		}
	}

	// Same reading again: everything already fired.
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("refreshProfile() error = %v", err)
	}
	if len(sink.crossed()) != len(want) {
		t.Errorf("re-evaluation fired again: %d crossings", len(sink.crossed()))
	}
}

func TestResetRecordsSnapshotAndClearsThresholds(t *testing.T) {
	store := &fakeStore{profiles: []models.Profile{webProfile("p1")}}
	fetcher := &fakeFetcher{}
	history := &fakeHistory{}
	sink := &fakeSink{}
	c := newTestCoordinator(t, store, fetcher, history, sink, Config{})

	events := c.Subscribe()

	firstReset := time.Now().Add(30 * time.Minute)
	fetcher.set(models.SourceWeb, sessionResult(97, firstReset), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	// The window rolled over: new reset time, usage back near zero.
	secondReset := firstReset.Add(5 * time.Hour)
	fetcher.set(models.SourceWeb, sessionResult(1, secondReset), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	snaps := history.snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots recorded = %d, want 1", len(snaps))
	}
	snap := snaps[0].snapshot
	if snaps[0].profileID != "p1" {
		t.Errorf("snapshot profile = %q", snaps[0].profileID)
	}
	if snap.Window != models.WindowSession {
		t.Errorf("snapshot window = %q", snap.Window)
	}
	if snap.Percent == nil || *snap.Percent != 97 {
		t.Errorf("snapshot percent = %v, want final pre-reset value 97", snap.Percent)
	}
	if !snap.TriggeredBy.Equal(firstReset) {
		t.Errorf("snapshot triggeredBy = %v, want %v", snap.TriggeredBy, firstReset)
	}

	// The fresh 1% reading must not fire anything.
	crossings := sink.crossed()
	if len(crossings) != 3 {
		t.Fatalf("crossings after reset = %d, want the 3 pre-reset ones", len(crossings))
	}

	// Climbing again after the reset re-fires from scratch.
	fetcher.set(models.SourceWeb, sessionResult(76, secondReset), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("third refresh: %v", err)
	}
	crossings = sink.crossed()
	if len(crossings) != 4 || crossings[3].threshold != 75 {
		t.Fatalf("post-reset crossings = %+v, want 75 re-fired", crossings)
	}

	var sawReset bool
	for _, event := range drainEvents(events) {
		if recorded, ok := event.(ResetRecordedEvent); ok {
			sawReset = true
			if recorded.Window != models.WindowSession {
				t.Errorf("reset event window = %q", recorded.Window)
			}
		}
	}
	if !sawReset {
		t.Error("no ResetRecordedEvent observed")
	}
}

func TestRefreshKeepsStaleSourceFields(t *testing.T) {
	profile := webProfile("p1")
	profile.Credentials = append(profile.Credentials, models.CredentialSource{
		Kind: models.SourceAPIConsole, Handle: "key",
	})
	store := &fakeStore{profiles: []models.Profile{profile}}
	fetcher := &fakeFetcher{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, &fakeSink{}, Config{})

	cycleEnd := time.Now().Add(20 * 24 * time.Hour)
	fetcher.set(models.SourceWeb, sessionResult(40, time.Now().Add(time.Hour)), nil)
	fetcher.set(models.SourceAPIConsole, &FetchResult{
		Reading: models.UsageReading{
			Billing: models.BillingWindow{CycleEndsAt: cycleEnd, Currency: "USD", SpendAmount: 12.5},
		},
	}, nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	// The billing source starts failing; its last-known figures survive.
	fetcher.set(models.SourceAPIConsole, nil, errors.New("503"))
	fetcher.set(models.SourceWeb, sessionResult(55, time.Now().Add(time.Hour)), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	reading := c.Reading("p1")
	if reading == nil {
		t.Fatal("Reading() = nil")
	}
	if reading.Session.Percent != 55 {
		t.Errorf("session percent = %v, want 55", reading.Session.Percent)
	}
	if reading.Billing.SpendAmount != 12.5 || !reading.Billing.CycleEndsAt.Equal(cycleEnd) {
		t.Errorf("billing fields not preserved: %+v", reading.Billing)
	}
}

func TestSourceDegradedAfterConsecutiveFailures(t *testing.T) {
	profile := webProfile("p1")
	profile.Credentials = append(profile.Credentials, models.CredentialSource{
		Kind: models.SourceAPIConsole, Handle: "key",
	})
	store := &fakeStore{profiles: []models.Profile{profile}}
	fetcher := &fakeFetcher{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, &fakeSink{}, Config{DegradedAfter: 3})

	events := c.Subscribe()

	fetcher.set(models.SourceWeb, sessionResult(10, time.Now().Add(time.Hour)), nil)
	fetcher.set(models.SourceAPIConsole, nil, errors.New("401"))

	for i := 0; i < 4; i++ {
		if err := c.refreshProfile("p1"); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}

	var degraded []SourceDegradedEvent
	for _, event := range drainEvents(events) {
		if d, ok := event.(SourceDegradedEvent); ok {
			degraded = append(degraded, d)
		}
	}
	if len(degraded) != 1 {
		t.Fatalf("degraded events = %d, want exactly 1", len(degraded))
	}
	if degraded[0].Source != models.SourceAPIConsole || degraded[0].Failures != 3 {
		t.Errorf("degraded event = %+v", degraded[0])
	}

	stats := c.GetStats()
	if stats.DegradedSources != 1 {
		t.Errorf("DegradedSources = %d, want 1", stats.DegradedSources)
	}

	// A success resets the streak.
	fetcher.set(models.SourceAPIConsole, &FetchResult{Reading: models.UsageReading{
		Billing: models.BillingWindow{CycleEndsAt: time.Now().Add(time.Hour), SpendAmount: 1},
	}}, nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("recovery refresh: %v", err)
	}
	if got := c.GetStats().DegradedSources; got != 0 {
		t.Errorf("DegradedSources after recovery = %d, want 0", got)
	}
}

func TestSnapshotStoreFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{profiles: []models.Profile{webProfile("p1")}}
	fetcher := &fakeFetcher{}
	history := &fakeHistory{failWith: errors.New("disk full")}
	c := newTestCoordinator(t, store, fetcher, history, &fakeSink{}, Config{})

	events := c.Subscribe()

	firstReset := time.Now().Add(time.Hour)
	fetcher.set(models.SourceWeb, sessionResult(80, firstReset), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	fetcher.set(models.SourceWeb, sessionResult(2, firstReset.Add(5*time.Hour)), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	var warnings, recorded, updated int
	for _, event := range drainEvents(events) {
		switch event.(type) {
		case StoreWarningEvent:
			warnings++
		case ResetRecordedEvent:
			recorded++
		case ReadingUpdatedEvent:
			updated++
		}
	}
	if warnings != 1 {
		t.Errorf("store warnings = %d, want 1", warnings)
	}
	if recorded != 0 {
		t.Errorf("reset recorded events = %d, want 0 on store failure", recorded)
	}
	if updated != 2 {
		t.Errorf("reading updates = %d, want 2: the reading must publish regardless", updated)
	}
	if reading := c.Reading("p1"); reading == nil || reading.Session.Percent != 2 {
		t.Errorf("published reading = %+v", reading)
	}
}

func TestProfileWithoutCredentialsSuspends(t *testing.T) {
	profile := webProfile("p1")
	profile.Credentials = nil
	store := &fakeStore{profiles: []models.Profile{profile}}
	c := newTestCoordinator(t, store, &fakeFetcher{}, &fakeHistory{}, &fakeSink{}, Config{})

	events := c.Subscribe()

	for i := 0; i < 3; i++ {
		if err := c.refreshProfile("p1"); !errors.Is(err, errNoUsableCredentials) {
			t.Fatalf("refresh %d error = %v, want errNoUsableCredentials", i, err)
		}
	}

	var suspended int
	for _, event := range drainEvents(events) {
		if _, ok := event.(ProfileSuspendedEvent); ok {
			suspended++
		}
	}
	if suspended != 1 {
		t.Errorf("suspension events = %d, want 1 per transition", suspended)
	}
}

func TestAutoStartRequestedOnSessionReset(t *testing.T) {
	profile := webProfile("p1")
	profile.AutoStartSession = true
	store := &fakeStore{profiles: []models.Profile{profile}}
	fetcher := &fakeFetcher{}
	sink := &fakeSink{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, sink, Config{})

	firstReset := time.Now().Add(time.Hour)
	fetcher.set(models.SourceWeb, sessionResult(50, firstReset), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	fetcher.set(models.SourceWeb, sessionResult(0, firstReset.Add(5*time.Hour)), nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	sink.mu.Lock()
	autoStarts := append([]string(nil), sink.autoStarts...)
	sink.mu.Unlock()
	if len(autoStarts) != 1 || autoStarts[0] != "p1" {
		t.Errorf("auto-start requests = %v, want [p1]", autoStarts)
	}
}

func TestAutoRotationOnExhaustion(t *testing.T) {
	active := webProfile("active")
	active.ActiveForDisplay = true
	standby := webProfile("standby")
	standby.AutoRotate = true
	tier := models.TierMax
	standby.Tier = &tier

	store := &fakeStore{profiles: []models.Profile{active, standby}}
	fetcher := &fakeFetcher{}
	sink := &fakeSink{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, sink, Config{AutoRotate: true})

	fetcher.set(models.SourceWeb, sessionResult(100, time.Now().Add(time.Hour)), nil)
	if err := c.refreshProfile("active"); err != nil {
		t.Fatalf("refreshProfile() error = %v", err)
	}

	store.mu.Lock()
	activated := append([]string(nil), store.activated...)
	store.mu.Unlock()
	if len(activated) != 1 || activated[0] != "standby" {
		t.Fatalf("activated = %v, want [standby]", activated)
	}
	sink.mu.Lock()
	notified := append([]string(nil), sink.activated...)
	sink.mu.Unlock()
	if len(notified) != 1 || notified[0] != "standby" {
		t.Errorf("sink activations = %v, want [standby]", notified)
	}

	// The tick's own Save must not re-assert the old profile's active
	// flag over what SetActiveProfile wrote.
	if got := store.get("active"); got.ActiveForDisplay {
		t.Error("old profile still active for display after rotation")
	}
	if got := store.get("standby"); !got.ActiveForDisplay {
		t.Error("successor not active for display after rotation")
	}

	// A second exhausted tick on the old profile must not rotate again.
	if err := c.refreshProfile("active"); err != nil {
		t.Fatalf("second refreshProfile() error = %v", err)
	}
	sink.mu.Lock()
	notified = append([]string(nil), sink.activated...)
	sink.mu.Unlock()
	if len(notified) != 1 {
		t.Errorf("sink activations after second tick = %v, want exactly one", notified)
	}
}

func TestRotationWithoutCandidateKeepsCurrent(t *testing.T) {
	active := webProfile("active")
	active.ActiveForDisplay = true
	store := &fakeStore{profiles: []models.Profile{active}}
	fetcher := &fakeFetcher{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, &fakeSink{}, Config{AutoRotate: true})

	events := c.Subscribe()

	fetcher.set(models.SourceWeb, sessionResult(100, time.Now().Add(time.Hour)), nil)
	if err := c.refreshProfile("active"); err != nil {
		t.Fatalf("refreshProfile() error = %v", err)
	}

	var noEligible int
	for _, event := range drainEvents(events) {
		if _, ok := event.(NoEligibleProfileEvent); ok {
			noEligible++
		}
	}
	if noEligible != 1 {
		t.Errorf("no-eligible events = %d, want 1", noEligible)
	}
	if got := store.get("active"); !got.ActiveForDisplay {
		t.Error("current profile lost its active flag with no successor")
	}
}

func TestBudgetThresholds(t *testing.T) {
	profile := webProfile("p1")
	profile.Credentials = []models.CredentialSource{{Kind: models.SourceAPIConsole, Handle: "key"}}
	profile.CheckOverage = true
	budget := 100.0
	profile.MonthlyBudget = &budget

	store := &fakeStore{profiles: []models.Profile{profile}}
	fetcher := &fakeFetcher{}
	sink := &fakeSink{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, sink, Config{})

	fetcher.set(models.SourceAPIConsole, &FetchResult{Reading: models.UsageReading{
		Billing: models.BillingWindow{CycleEndsAt: time.Now().Add(24 * time.Hour), Currency: "USD", SpendAmount: 80},
	}}, nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("refreshProfile() error = %v", err)
	}

	got := sink.crossed()
	if len(got) != 2 {
		t.Fatalf("crossings = %+v, want 50 and 75", got)
	}
	for i, want := range []float64{50, 75} {
		if got[i].window != models.WindowBillingCycle || got[i].threshold != want {
			t.Errorf("crossing[%d] = %+v, want billingCycle/%v", i, got[i], want)
		}
	}
}

func TestTierResolvedFromCapabilities(t *testing.T) {
	store := &fakeStore{profiles: []models.Profile{webProfile("p1")}}
	fetcher := &fakeFetcher{}
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, &fakeSink{}, Config{})

	result := sessionResult(10, time.Now().Add(time.Hour))
	result.Capabilities = []string{"claude_max_20x"}
	fetcher.set(models.SourceWeb, result, nil)
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("refreshProfile() error = %v", err)
	}

	saved := store.get("p1")
	if saved.Tier == nil || *saved.Tier != models.TierMax {
		t.Errorf("cached tier = %v, want max", saved.Tier)
	}
	if saved.LastReading == nil || saved.LastReading.Session.Percent != 10 {
		t.Errorf("cached reading = %+v", saved.LastReading)
	}
}

func TestReconcileTracksStoreChanges(t *testing.T) {
	store := &fakeStore{profiles: []models.Profile{webProfile("p1"), webProfile("p2")}}
	fetcher := &fakeFetcher{}
	fetcher.set(models.SourceWeb, sessionResult(10, time.Now().Add(time.Hour)), nil)
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, &fakeSink{}, Config{})

	c.Start()
	if got := c.GetStats().ProfilesTracked; got != 2 {
		t.Fatalf("ProfilesTracked = %d, want 2", got)
	}

	store.mu.Lock()
	store.profiles = store.profiles[:1]
	store.mu.Unlock()
	c.Reconcile()
	if got := c.GetStats().ProfilesTracked; got != 1 {
		t.Errorf("ProfilesTracked after removal = %d, want 1", got)
	}

	if err := c.RefreshNow("p2"); err == nil {
		t.Error("RefreshNow for removed profile succeeded, want error")
	}
}

func TestReconcileRejectsInvalidInterval(t *testing.T) {
	profile := webProfile("p1")
	profile.RefreshInterval = 2 * time.Second
	store := &fakeStore{profiles: []models.Profile{profile}}
	c := newTestCoordinator(t, store, &fakeFetcher{}, &fakeHistory{}, &fakeSink{}, Config{})

	events := c.Subscribe()
	c.Start()

	if got := c.GetStats().ProfilesTracked; got != 0 {
		t.Fatalf("ProfilesTracked = %d, want 0 for invalid interval", got)
	}
	var sawRangeError bool
	for _, event := range drainEvents(events) {
		if errEvent, ok := event.(ErrorEvent); ok && errors.Is(errEvent.Error, config.ErrIntervalOutOfRange) {
			sawRangeError = true
		}
	}
	if !sawRangeError {
		t.Error("no ErrIntervalOutOfRange error event")
	}
}

func TestRefreshNowCoalescesConcurrentRequests(t *testing.T) {
	store := &fakeStore{profiles: []models.Profile{webProfile("p1")}}
	fetcher := &fakeFetcher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fetcher.set(models.SourceWeb, sessionResult(10, time.Now().Add(time.Hour)), nil)
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, &fakeSink{}, Config{})

	c.Start()

	// The runner's initial tick is now blocked inside Fetch.
	<-fetcher.started

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.RefreshNow("p1")
		}()
	}

	// Give both requests time to attach to the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("RefreshNow %d error = %v", i, err)
		}
	}
	if calls := fetcher.callCount(); calls != 1 {
		t.Errorf("fetch calls = %d, want 1 coalesced fetch", calls)
	}
}

func TestSubscribeReceivesReadingUpdates(t *testing.T) {
	store := &fakeStore{profiles: []models.Profile{webProfile("p1")}}
	fetcher := &fakeFetcher{}
	fetcher.set(models.SourceWeb, sessionResult(42, time.Now().Add(time.Hour)), nil)
	c := newTestCoordinator(t, store, fetcher, &fakeHistory{}, &fakeSink{}, Config{})

	events := c.Subscribe()
	if err := c.refreshProfile("p1"); err != nil {
		t.Fatalf("refreshProfile() error = %v", err)
	}

	select {
	case event := <-events:
		updated, ok := event.(ReadingUpdatedEvent)
		if !ok {
			t.Fatalf("first event = %T, want ReadingUpdatedEvent", event)
		}
		if updated.ProfileID != "p1" || updated.Reading.Session.Percent != 42 {
			t.Errorf("event = %+v", updated)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	c.Unsubscribe(events)
	if _, ok := <-events; ok {
		t.Error("channel still open after Unsubscribe")
	}
}
