// Package state holds the canonical world state for a playthrough and its
// persistence. The World struct is the single source of truth; everything
// else in the engine mutates it only through the methods defined here.
package state

// Stat keys. The numeric stat set is closed: effect deltas only ever apply
// to these four keys, never to flags or collections.
const (
	StatStability = "stability"
	StatNoise     = "noise"
	StatTrust     = "trust"
	StatAwareness = "awareness"
)

// StatKeys lists the mutable numeric stats in display order.
var StatKeys = []string{StatStability, StatNoise, StatTrust, StatAwareness}

// Stat bounds. Every stat is clamped into this range at all times.
const (
	StatMin = 0
	StatMax = 100
)

// HistoryLimit caps the dialogue log; the oldest entry is evicted first.
const HistoryLimit = 50

// Entry is a single line of the dialogue log.
type Entry struct {
	Speaker string `yaml:"speaker"` // "player", "narrator" or "system"
	Text    string `yaml:"text"`
}

// World is the canonical save state.
type World struct {
	Loop         int            `yaml:"loop"`
	Stats        map[string]int `yaml:"stats"`
	Flags        map[string]any `yaml:"flags"`
	Visited      []string       `yaml:"visited"`
	CurrentScene string         `yaml:"current_scene"`
	SceneCount   int            `yaml:"scene_count"`
	TurnCount    int            `yaml:"turn_count"`
	History      []Entry        `yaml:"history"`
}

// Default returns the state a brand-new game starts from.
func Default() *World {
	return &World{
		Loop: 1,
		Stats: map[string]int{
			StatStability: 70,
			StatNoise:     20,
			StatTrust:     40,
			StatAwareness: 10,
		},
		Flags: map[string]any{},
	}
}

// Visit records a scene as visited this loop and makes it current. It
// reports whether the scene was newly visited. The visited set is
// append-only within a loop and deduplicated.
func (w *World) Visit(id string) bool {
	w.CurrentScene = id
	w.SceneCount++
	for _, v := range w.Visited {
		if v == id {
			return false
		}
	}
	w.Visited = append(w.Visited, id)
	return true
}

// HasVisited reports whether a scene was already entered this loop.
func (w *World) HasVisited(id string) bool {
	for _, v := range w.Visited {
		if v == id {
			return true
		}
	}
	return false
}

// NextTurn increments the dialogue-turn counter and returns the new value.
func (w *World) NextTurn() int {
	w.TurnCount++
	return w.TurnCount
}

// AppendHistory adds a dialogue entry, evicting the oldest once the log
// exceeds HistoryLimit.
func (w *World) AppendHistory(e Entry) {
	w.History = append(w.History, e)
	if n := len(w.History) - HistoryLimit; n > 0 {
		w.History = append(w.History[:0], w.History[n:]...)
	}
}

// RecentHistory returns up to n of the newest dialogue entries.
func (w *World) RecentHistory(n int) []Entry {
	if n <= 0 || len(w.History) == 0 {
		return nil
	}
	if len(w.History) > n {
		return w.History[len(w.History)-n:]
	}
	return w.History
}

// MergeFlags overwrites flags key by key. The flag map itself is never
// replaced wholesale, so unrelated flags survive.
func (w *World) MergeFlags(flags map[string]any) {
	if len(flags) == 0 {
		return
	}
	if w.Flags == nil {
		w.Flags = map[string]any{}
	}
	for k, v := range flags {
		w.Flags[k] = v
	}
}

// Stat returns a stat value; ok is false for keys outside the stat set.
func (w *World) Stat(key string) (int, bool) {
	v, ok := w.Stats[key]
	return v, ok
}

// Snapshot returns a deep copy safe to hand to the presentation layer.
func (w *World) Snapshot() World {
	cp := *w
	cp.Stats = make(map[string]int, len(w.Stats))
	for k, v := range w.Stats {
		cp.Stats[k] = v
	}
	cp.Flags = make(map[string]any, len(w.Flags))
	for k, v := range w.Flags {
		cp.Flags[k] = v
	}
	cp.Visited = append([]string(nil), w.Visited...)
	cp.History = append([]Entry(nil), w.History...)
	return cp
}

// Normalize repairs a state loaded from disk: clamps stats, restores
// missing stat keys, and enforces counter and history invariants.
func (w *World) Normalize() {
	if w.Loop < 1 {
		w.Loop = 1
	}
	def := Default()
	if w.Stats == nil {
		w.Stats = map[string]int{}
	}
	for _, k := range StatKeys {
		v, ok := w.Stats[k]
		if !ok {
			w.Stats[k] = def.Stats[k]
			continue
		}
		if v < StatMin {
			w.Stats[k] = StatMin
		} else if v > StatMax {
			w.Stats[k] = StatMax
		}
	}
	if w.Flags == nil {
		w.Flags = map[string]any{}
	}
	if w.SceneCount < 0 {
		w.SceneCount = 0
	}
	if w.TurnCount < 0 {
		w.TurnCount = 0
	}
	if n := len(w.History) - HistoryLimit; n > 0 {
		w.History = w.History[n:]
	}
}
