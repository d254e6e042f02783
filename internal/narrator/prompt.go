package narrator

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/solhart/nightloop/internal/scene"
	"github.com/solhart/nightloop/internal/state"
)

//go:embed prompts/narrator_system.txt
var systemPromptText string

// historyWindow caps how many recent dialogue entries travel in the
// prompt; older context is dropped, not summarized.
const historyWindow = 8

var systemPrompt = template.Must(template.New("narrator_system").Parse(systemPromptText))

type promptView struct {
	Loop       int
	TurnCount  int
	Stats      map[string]int
	SceneTitle string
	SceneText  string
	NPC        string
	Facts      string
}

// BuildMessages assembles the outgoing message list: rendered system
// prompt, the trimmed recent dialogue history, then the latest player
// line.
func BuildMessages(w *state.World, current *scene.Scene, facts []string, userText string) ([]Message, error) {
	view := promptView{
		Loop:      w.Loop,
		TurnCount: w.TurnCount,
		Stats:     w.Stats,
		Facts:     strings.Join(facts, "\n"),
	}
	if current != nil {
		view.SceneTitle = current.Title
		view.SceneText = current.Text
		view.NPC = current.NPC
	}

	var buf bytes.Buffer
	if err := systemPrompt.Execute(&buf, view); err != nil {
		return nil, err
	}

	messages := []Message{{Role: "system", Content: buf.String()}}
	for _, entry := range w.RecentHistory(historyWindow) {
		role := "assistant"
		if entry.Speaker == "player" {
			role = "user"
		}
		messages = append(messages, Message{Role: role, Content: entry.Text})
	}
	messages = append(messages, Message{Role: "user", Content: userText})
	return messages, nil
}
