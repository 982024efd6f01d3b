package loader

import (
	"sync"

	"ledgerfund/internal/model"
)

// TierTracker records independent loading state for each pipeline tier.
// Tiers run strictly in order, so at most one entry is loading at a time.
type TierTracker struct {
	mu     sync.Mutex
	states []model.TierState
}

func NewTierTracker() *TierTracker {
	tiers := model.Tiers()
	states := make([]model.TierState, len(tiers))
	for i, tier := range tiers {
		states[i] = model.TierState{Tier: tier}
	}
	return &TierTracker{states: states}
}

// Begin marks the tier loading and clears any error from a prior attempt.
func (t *TierTracker) Begin(tier model.Tier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.states {
		if t.states[i].Tier == tier {
			t.states[i].IsLoading = true
			t.states[i].Error = ""
		}
	}
}

// Finish marks the tier done with no error.
func (t *TierTracker) Finish(tier model.Tier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.states {
		if t.states[i].Tier == tier {
			t.states[i].IsLoading = false
		}
	}
}

// Fail marks the tier done and records the failure for display.
func (t *TierTracker) Fail(tier model.Tier, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.states {
		if t.states[i].Tier == tier {
			t.states[i].IsLoading = false
			if err != nil {
				t.states[i].Error = err.Error()
			}
		}
	}
}

// Snapshot returns a copy of all tier states in pipeline order.
func (t *TierTracker) Snapshot() []model.TierState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.TierState, len(t.states))
	copy(out, t.states)
	return out
}

// State returns the current state of one tier.
func (t *TierTracker) State(tier model.Tier) (model.TierState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, state := range t.states {
		if state.Tier == tier {
			return state, true
		}
	}
	return model.TierState{}, false
}
