// Package thresholds tracks which alert percentages have fired for each
// profile and window since that window's last reset.
package thresholds

import (
	"sort"
	"sync"

	"github.com/j-veylop/usagewatch/internal/models"
)

// DefaultUsageThresholds are the alert levels for usage windows when a
// profile does not configure its own.
var DefaultUsageThresholds = []float64{75, 90, 95}

// DefaultBudgetThresholds are the alert levels applied to monthly budget
// consumption.
var DefaultBudgetThresholds = []float64{50, 75, 90}

type stateKey struct {
	profileID string
	window    models.WindowKind
}

// Engine records fired thresholds per (profile, window). State is held in
// memory only: thresholds are meant to fire within a single run of the
// coordinator, and a window reset clears them anyway.
type Engine struct {
	mu    sync.Mutex
	fired map[stateKey]map[float64]bool
}

// NewEngine creates an empty threshold engine.
func NewEngine() *Engine {
	return &Engine{
		fired: make(map[stateKey]map[float64]bool),
	}
}

// Evaluate marks and returns, in ascending order, every configured
// threshold that the percentage meets or exceeds and that has not fired
// for this (profile, window) since its last reset. A reading that jumps
// past several thresholds at once fires all of them, each exactly once;
// re-evaluating the same reading returns nothing.
func (e *Engine) Evaluate(profileID string, window models.WindowKind, percent float64, configured []float64) []float64 {
	if len(configured) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := stateKey{profileID: profileID, window: window}
	state, ok := e.fired[key]
	if !ok {
		state = make(map[float64]bool)
		e.fired[key] = state
	}

	var crossed []float64
	for _, threshold := range configured {
		if state[threshold] {
			continue
		}
		if percent >= threshold {
			state[threshold] = true
			crossed = append(crossed, threshold)
		}
	}

	sort.Float64s(crossed)
	return crossed
}

// Reset clears the fired set for one (profile, window). Invoked by the
// coordinator whenever a reset event for that window is observed.
func (e *Engine) Reset(profileID string, window models.WindowKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.fired, stateKey{profileID: profileID, window: window})
}

// Forget drops all state for a profile, for when it is removed from
// tracking.
func (e *Engine) Forget(profileID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.fired {
		if key.profileID == profileID {
			delete(e.fired, key)
		}
	}
}
