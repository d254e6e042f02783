package effect

import "github.com/solhart/nightloop/internal/state"

// NormalEndingMinScenes is the independent safeguard on the normal-arrival
// ending: regardless of its own predicate, "dawn" cannot fire before this
// many scenes.
const NormalEndingMinScenes = 10

// Ending is a static terminal outcome with a predicate over the world.
type Ending struct {
	ID          string
	Title       string
	Description string

	cond func(w *state.World) bool
	// minScenes gates the ending independently of cond. Only the
	// normal-arrival ending carries it.
	minScenes int
}

// Endings in priority order. The first true predicate wins.
var endings = []Ending{
	{
		ID:          "collapse",
		Title:       "Collapse",
		Description: "The station holds. You do not. The night files you away with the other reels.",
		cond: func(w *state.World) bool {
			return w.Stats[state.StatStability] <= 20
		},
	},
	{
		ID:          "static",
		Title:       "Static",
		Description: "The noise wins. Every frequency is the same frequency now, and all of them are you.",
		cond: func(w *state.World) bool {
			return w.Stats[state.StatNoise] >= 95
		},
	},
	{
		ID:          "severance",
		Title:       "Severance",
		Description: "You stop answering. The signal stops asking. The station goes dark around a stranger.",
		cond: func(w *state.World) bool {
			return w.Stats[state.StatTrust] <= 5
		},
	},
	{
		ID:          "lucidity",
		Title:       "Lucidity",
		Description: "You see the whole shape of the night at once — the loop, the signal, the hand on the key.",
		cond: func(w *state.World) bool {
			return w.Stats[state.StatAwareness] >= 95
		},
	},
	{
		// No predicate: the session manager owns the turn budget and
		// triggers silence by id when a turn spends the last of it.
		ID:          "silence",
		Title:       "Silence",
		Description: "You have nothing left to say tonight. The frequency closes like an eye.",
	},
	{
		ID:          "dawn",
		Title:       "Dawn",
		Description: "The clock moves. 23:48. Grey light finds the antenna field, and the night lets you go.",
		cond: func(w *state.World) bool {
			return w.SceneCount >= 7
		},
		minScenes: NormalEndingMinScenes,
	},
}

// Find returns the ending with the given id.
func Find(id string) (*Ending, bool) {
	for i := range endings {
		if endings[i].ID == id {
			return &endings[i], true
		}
	}
	return nil, false
}

// DefaultEnding is the terminal fallback when nothing else resolves (empty
// random pool, unknown target).
func DefaultEnding() *Ending {
	e, _ := Find("dawn")
	return e
}

// Evaluate walks the priority list and returns the first ending whose
// predicate holds, or nil if the night goes on. Endings without a
// predicate are reachable only by id. The normal-arrival ending is
// additionally skipped while its independent scene-count minimum is
// unmet, even when its own predicate would pass.
func Evaluate(w *state.World) *Ending {
	for i := range endings {
		e := &endings[i]
		if e.cond == nil {
			continue
		}
		if e.minScenes > 0 && w.SceneCount < e.minScenes {
			continue
		}
		if e.cond(w) {
			return e
		}
	}
	return nil
}
