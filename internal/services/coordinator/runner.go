package coordinator

import (
	"errors"
	"sync"
	"time"

	"github.com/j-veylop/usagewatch/internal/logger"
)

var (
	errNoUsableCredentials = errors.New("no usable credentials")
	errRunnerStopped       = errors.New("refresh canceled: runner stopped")
)

// runnerState gates a runner's refresh activity.
type runnerState int

const (
	// stateIdle means the runner is waiting for its next tick.
	stateIdle runnerState = iota
	// stateFetching means a fetch is in flight; new refresh requests
	// attach to it instead of starting another.
	stateFetching
	// stateSuspended means the profile has no usable credentials; the
	// timer keeps running so the profile recovers on its own once
	// credentials reappear.
	stateSuspended
)

// runner drives the refresh loop for a single profile.
type runner struct {
	coord     *Coordinator
	profileID string
	interval  time.Duration

	refreshCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once

	mu      sync.Mutex
	state   runnerState
	waiters []chan error
}

func newRunner(coord *Coordinator, profileID string, interval time.Duration) *runner {
	return &runner{
		coord:     coord,
		profileID: profileID,
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (r *runner) start() {
	go r.loop()
}

// stop cancels the pending timer and waits for the loop to exit. An
// in-flight fetch is allowed to complete first.
func (r *runner) stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}

func (r *runner) loop() {
	defer close(r.doneCh)

	logger.Debug("runner started", "profile", r.profileID, "interval", r.interval.String())

	r.tick()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.failWaiters(errRunnerStopped)
			logger.Debug("runner stopped", "profile", r.profileID)
			return
		case <-ticker.C:
			r.tick()
		case <-r.refreshCh:
			r.tick()
		}
	}
}

// requestRefresh registers a waiter for the next refresh result. If a
// fetch is already in flight the waiter attaches to it; otherwise one
// refresh is queued. Queued requests coalesce into a single fetch.
func (r *runner) requestRefresh() error {
	waiter := make(chan error, 1)

	r.mu.Lock()
	r.waiters = append(r.waiters, waiter)
	inFlight := r.state == stateFetching
	r.mu.Unlock()

	if !inFlight {
		select {
		case r.refreshCh <- struct{}{}:
		default:
		}
	}

	select {
	case err := <-waiter:
		return err
	case <-r.stopCh:
		return errRunnerStopped
	}
}

// tick performs one refresh and settles every waiter that attached
// before it finished.
func (r *runner) tick() {
	r.mu.Lock()
	if r.state == stateFetching {
		r.mu.Unlock()
		return
	}
	r.state = stateFetching
	r.mu.Unlock()

	err := r.coord.refreshProfile(r.profileID)

	r.mu.Lock()
	if errors.Is(err, errNoUsableCredentials) {
		r.state = stateSuspended
	} else {
		r.state = stateIdle
	}
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- err
	}
}

func (r *runner) failWaiters(err error) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- err
	}
}
