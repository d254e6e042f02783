package engine

import (
	"github.com/solhart/nightloop/internal/effect"
	"github.com/solhart/nightloop/internal/scene"
)

// Event is anything the engine reports to the presentation layer. The UI
// consumes these from Events(); the engine never touches rendering.
type Event interface{ isEvent() }

// NarrativeEvent carries the full current display text of the in-flight
// dialogue stream. Emitted only when the visible text actually changed.
type NarrativeEvent struct{ Text string }

// SystemEvent is an out-of-character notice: connection trouble, stalls,
// recovered errors.
type SystemEvent struct{ Text string }

// ShockEvent asks the presentation layer for its shock treatment (screen
// shake, flash). Derived from one effect application, never stored.
type ShockEvent struct{ Shock effect.Shock }

// SceneEvent announces a completed scene transition. Scene is nil for
// dynamic locations the narrator invented; Location always names the
// current place.
type SceneEvent struct {
	Scene    *scene.Scene
	Location string
	Text     string
}

// EndingEvent announces a terminal outcome. Gameplay input is suspended
// until a new game or the next loop.
type EndingEvent struct{ Ending *effect.Ending }

// TurnDoneEvent marks the end of a dialogue turn: input re-enabled.
type TurnDoneEvent struct{}

func (NarrativeEvent) isEvent() {}
func (SystemEvent) isEvent()    {}
func (ShockEvent) isEvent()     {}
func (SceneEvent) isEvent()     {}
func (EndingEvent) isEvent()    {}
func (TurnDoneEvent) isEvent()  {}
