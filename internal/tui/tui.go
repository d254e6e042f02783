// Package tui is the thin presentation layer. All game logic lives in the
// engine; this model just renders events and forwards input.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/solhart/nightloop/internal/effect"
	"github.com/solhart/nightloop/internal/engine"
	"github.com/solhart/nightloop/internal/scene"
	"github.com/solhart/nightloop/internal/state"
)

type model struct {
	eng       *engine.Engine
	textInput textinput.Model
	viewport  viewport.Model
	spin      spinner.Model

	width  int
	height int

	gameLog    string
	streamText string
	choices    []scene.Choice
	sceneTitle string
	streaming  bool
	ended      *effect.Ending
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#3A3A5C")).
			Bold(true).
			PaddingLeft(1)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D7D7D7"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AF8700")).
			Italic(true)

	shockStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87AFD7"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	endingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF87AF")).
			Bold(true)
)

func newModel(eng *engine.Engine) model {
	ti := textinput.New()
	ti.Placeholder = "Pick a number, or say something..."
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{eng: eng, textInput: ti, spin: sp}
}

type eventMsg struct{ ev engine.Event }

func waitEvent(eng *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-eng.Events()
		if !ok {
			return nil
		}
		return eventMsg{ev}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitEvent(m.eng))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.eng.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleInput()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logWidth := int(float64(msg.Width) * 0.72)
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(logWidth, msg.Height-6)
		} else {
			m.viewport.Width = logWidth
			m.viewport.Height = msg.Height - 6
		}
		m.refreshLog()

	case spinner.TickMsg:
		if m.streaming {
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}

	case eventMsg:
		cmd = m.handleEvent(msg.ev)
		return m, tea.Batch(cmd, waitEvent(m.eng))
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *model) handleInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())
	if input == "" {
		return m, nil
	}
	m.textInput.Reset()

	switch input {
	case "/quit":
		m.eng.Close()
		return m, tea.Quit
	case "/new":
		m.reset()
		m.eng.NewGame()
		return m, nil
	case "/loop":
		m.reset()
		m.eng.NextLoop()
		return m, nil
	case "/save":
		if err := m.eng.Save(); err == nil {
			m.appendLog(systemStyle.Render("(saved)"))
		}
		return m, nil
	}

	if m.streaming || m.ended != nil {
		// Input is disabled while a turn streams or after an ending.
		return m, nil
	}

	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(m.choices) {
			m.appendLog(userStyle.Render("> " + m.choices[n-1].Label))
			// A rejected dialogue submission emits no events, so the
			// spinner only starts when a stream is actually in flight.
			m.streaming = m.eng.Choose(n - 1)
			if m.streaming {
				return m, m.spin.Tick
			}
		}
		return m, nil
	}

	m.appendLog(userStyle.Render("> " + input))
	m.streaming = m.eng.Say(input)
	if m.streaming {
		return m, m.spin.Tick
	}
	return m, nil
}

func (m *model) handleEvent(ev engine.Event) tea.Cmd {
	switch ev := ev.(type) {
	case engine.SceneEvent:
		m.sceneTitle = ev.Location
		m.choices = nil
		if ev.Scene != nil {
			m.sceneTitle = ev.Scene.Title
			m.choices = ev.Scene.Choices
		}
		block := titleStyle.Render(m.sceneTitle) + "\n" + narratorStyle.Render(ev.Text)
		m.appendLog(block)

	case engine.NarrativeEvent:
		m.streaming = true
		m.streamText = ev.Text
		m.refreshLog()
		return m.spin.Tick

	case engine.TurnDoneEvent:
		if m.streamText != "" {
			m.appendLog(narratorStyle.Render(m.streamText))
			m.streamText = ""
		}
		m.streaming = false
		m.refreshLog()

	case engine.SystemEvent:
		m.appendLog(systemStyle.Render(ev.Text))

	case engine.ShockEvent:
		// No screen to shake in a terminal; a marker line stands in.
		m.appendLog(shockStyle.Render("*** the station shudders ***"))

	case engine.EndingEvent:
		m.ended = ev.Ending
		m.streaming = false
		m.streamText = ""
		m.choices = nil
		block := endingStyle.Render("ENDING — "+ev.Ending.Title) + "\n" +
			narratorStyle.Render(ev.Ending.Description)
		m.appendLog(block)
	}
	return nil
}

func (m *model) reset() {
	m.ended = nil
	m.streaming = false
	m.streamText = ""
	m.gameLog = ""
	m.choices = nil
	m.refreshLog()
}

func (m *model) appendLog(block string) {
	if m.gameLog != "" {
		m.gameLog += "\n\n"
	}
	m.gameLog += block
	m.refreshLog()
}

func (m *model) refreshLog() {
	content := m.gameLog
	if m.streamText != "" {
		content += "\n\n" + narratorStyle.Render(m.streamText)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m model) View() string {
	logView := m.viewport.View()
	stateView := m.renderState()

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, logView, stateView)

	input := m.textInput.View()
	if m.streaming {
		input = m.spin.View() + " the night is answering..."
	}

	help := helpStyle.Render(m.helpLine())

	return "\n" + lipgloss.JoinVertical(lipgloss.Left,
		mainView,
		m.renderChoices(),
		"\n"+input,
		"\n"+help,
	) + "\n"
}

func (m model) helpLine() string {
	if m.ended != nil {
		return "Commands: /loop for the next night, /new to start over, /quit."
	}
	return "Pick a choice by number, type to speak, or: /save, /new, /quit."
}

func (m model) renderChoices() string {
	if len(m.choices) == 0 || m.ended != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	for i, c := range m.choices {
		b.WriteString(choiceStyle.Render(fmt.Sprintf("  %d. %s", i+1, c.Label)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) renderState() string {
	w := m.eng.World()

	loop := titleStyle.Render("LOOP") + "\n" + fmt.Sprintf("Night %d, turn %d", w.Loop, w.TurnCount) + "\n\n"

	stats := titleStyle.Render("CONDITION") + "\n"
	for _, k := range state.StatKeys {
		stats += fmt.Sprintf("%s: %d\n", k, w.Stats[k])
	}
	stats += "\n"

	scenes := titleStyle.Render("TONIGHT") + "\n" +
		fmt.Sprintf("%d places visited\n", len(w.Visited))

	content := loop + stats + scenes
	stateWidth := int(float64(m.width) * 0.24)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(content)
}

// Run starts the engine and the terminal UI, blocking until quit.
func Run(eng *engine.Engine) error {
	p := tea.NewProgram(newModel(eng), tea.WithAltScreen())
	go func() {
		eng.Start()
	}()
	_, err := p.Run()
	return err
}
