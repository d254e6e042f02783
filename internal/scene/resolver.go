package scene

import (
	"errors"
	"math/rand/v2"

	"github.com/solhart/nightloop/internal/state"
)

// ErrNoScene signals that nothing resolved: an unknown id, or an empty
// random pool. Callers must fall through to the terminal ending rather
// than crash.
var ErrNoScene = errors.New("no eligible scene")

// Resolver selects the next authored scene. It is stateless apart from its
// random source; transition serialization is the engine's job.
type Resolver struct {
	scenes *Collection
	pick   func(n int) int
}

// NewResolver builds a resolver over the loaded collection.
func NewResolver(c *Collection) *Resolver {
	return &Resolver{scenes: c, pick: rand.IntN}
}

// Resolve returns the scene for targetID. When targetID is empty and the
// selection came from an explicit player choice, it returns a uniformly
// random eligible scene. Eligible means: not visited this loop, marked random,
// and its condition (if any) holds.
func (r *Resolver) Resolve(targetID string, w *state.World, explicit bool) (*Scene, error) {
	if targetID != "" {
		if s, ok := r.scenes.Get(targetID); ok {
			return s, nil
		}
		return nil, ErrNoScene
	}
	if !explicit {
		return nil, ErrNoScene
	}
	pool := r.eligible(w)
	if len(pool) == 0 {
		return nil, ErrNoScene
	}
	return pool[r.pick(len(pool))], nil
}

func (r *Resolver) eligible(w *state.World) []*Scene {
	var pool []*Scene
	for _, s := range r.scenes.All() {
		if !s.Random {
			continue
		}
		if w.HasVisited(s.ID) {
			continue
		}
		if !s.Conditions.Holds(w) {
			continue
		}
		pool = append(pool, s)
	}
	return pool
}
