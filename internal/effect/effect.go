// Package effect applies numeric deltas to world stats, evaluates ending
// predicates, and handles the between-loop stat decay.
package effect

import (
	"github.com/solhart/nightloop/internal/state"
)

// Shock thresholds. A single application that drops stability this much,
// or raises noise this much, emits a shock signal for the presentation
// layer. The signal is derived, never stored.
const (
	shockStabilityDrop = 10
	shockNoiseRise     = 15
)

// Shock reports the presentation-layer signal derived from one effect
// application.
type Shock struct {
	Triggered     bool
	StabilityDrop int
	NoiseRise     int
}

// Apply adds each delta to the matching stat and clamps the result into
// [0,100]. Keys outside the numeric stat set (flags, typos) are ignored.
// Returns the shock signal for this application.
func Apply(w *state.World, deltas map[string]int) Shock {
	var shock Shock
	for key, delta := range deltas {
		old, ok := w.Stat(key)
		if !ok {
			continue
		}
		v := clamp(old + delta)
		w.Stats[key] = v
		switch key {
		case state.StatStability:
			if drop := old - v; drop >= shockStabilityDrop {
				shock.Triggered = true
				shock.StabilityDrop = drop
			}
		case state.StatNoise:
			if rise := v - old; rise >= shockNoiseRise {
				shock.Triggered = true
				shock.NoiseRise = rise
			}
		}
	}
	return shock
}

func clamp(v int) int {
	if v < state.StatMin {
		return state.StatMin
	}
	if v > state.StatMax {
		return state.StatMax
	}
	return v
}

// AdvanceLoop moves the world into the next loop: counters and the visited
// set reset, flags and the dialogue log persist, and stats decay by the
// authored rules. Awareness carries half of itself plus ten; noise keeps a
// quarter as residue; stability returns to its baseline; trust is carried
// unchanged.
func AdvanceLoop(w *state.World) {
	w.Loop++
	w.TurnCount = 0
	w.SceneCount = 0
	w.Visited = nil
	w.CurrentScene = ""
	w.Stats[state.StatAwareness] = clamp(w.Stats[state.StatAwareness]/2 + 10)
	w.Stats[state.StatNoise] = clamp(w.Stats[state.StatNoise] / 4)
	w.Stats[state.StatStability] = 50
}
