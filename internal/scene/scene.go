// Package scene holds the authored scene graph: immutable scene records
// loaded once at startup, plus the resolver that picks what to show next.
package scene

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/solhart/nightloop/internal/state"
)

// Kind classifies what picking a choice does.
type Kind int

const (
	KindDialogue Kind = iota // send the label to the narrator as player speech
	KindEvent                // apply effects/flags in place
	KindNavigate             // jump to an explicit scene
	KindAction               // physical action, resolved like an event
	KindImplicit             // free-typed player input, never authored
)

var kindNames = map[Kind]string{
	KindDialogue: "dialogue",
	KindEvent:    "event",
	KindNavigate: "navigate",
	KindAction:   "action",
	KindImplicit: "implicit",
}

func (k Kind) String() string { return kindNames[k] }

var kindTags = map[string]Kind{
	"dialogue": KindDialogue,
	"event":    KindEvent,
	"navigate": KindNavigate,
	"action":   KindAction,
	"implicit": KindImplicit,
}

// ClassifyKind maps an authored kind tag to a Kind. Absent a tag it falls
// back to a punctuation heuristic: a quoted label is spoken dialogue,
// anything else is an event. The heuristic is an authoring convenience
// only; explicit tags are preferred.
func ClassifyKind(tag, label string) Kind {
	if k, ok := kindTags[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return k
	}
	if strings.ContainsAny(label, `"“”「」`) {
		return KindDialogue
	}
	return KindEvent
}

// Choice is one selectable option belonging to exactly one scene.
type Choice struct {
	Label   string         `yaml:"label"`
	Type    string         `yaml:"type,omitempty"` // authored kind tag, optional
	Effects map[string]int `yaml:"effects,omitempty"`
	Flags   map[string]any `yaml:"flags,omitempty"`
	Ending  string         `yaml:"ending,omitempty"`
	Next    string         `yaml:"next,omitempty"`
}

// Kind returns the effective kind of the choice.
func (c *Choice) Kind() Kind { return ClassifyKind(c.Type, c.Label) }

// Scene is an immutable authored narrative unit.
type Scene struct {
	ID         string         `yaml:"id"`
	Title      string         `yaml:"title"`
	Text       string         `yaml:"text"`
	NPC        string         `yaml:"npc,omitempty"`
	Background string         `yaml:"background,omitempty"`
	Choices    []Choice       `yaml:"choices,omitempty"`
	Conditions *ConditionSpec `yaml:"conditions,omitempty"`
	Random     bool           `yaml:"random,omitempty"`
}

// textView is the data scene text templates interpolate over.
type textView struct {
	Loop  int
	Stats map[string]int
	Flags map[string]any
}

// RenderText interpolates the scene's narrator text against the current
// world. Malformed templates degrade to the raw text rather than failing
// a transition.
func (s *Scene) RenderText(w *state.World) string {
	if !strings.Contains(s.Text, "{{") {
		return s.Text
	}
	tmpl, err := template.New(s.ID).Option("missingkey=zero").Parse(s.Text)
	if err != nil {
		return s.Text
	}
	var buf bytes.Buffer
	view := textView{Loop: w.Loop, Stats: w.Stats, Flags: w.Flags}
	if err := tmpl.Execute(&buf, view); err != nil {
		return s.Text
	}
	return buf.String()
}

// DynamicPrefix marks scene ids that are not authored but still valid as a
// current location, e.g. places the narrator invents mid-dialogue.
const DynamicPrefix = "loc:"

// IsDynamic reports whether id names a recognized dynamic location rather
// than an authored scene.
func IsDynamic(id string) bool { return strings.HasPrefix(id, DynamicPrefix) }
