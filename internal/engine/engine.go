// Package engine wires the world store, scene resolver, effect engine,
// and dialogue session manager into one narrative state machine. All world
// mutation happens here, under one lock, through the components' narrow
// entry points.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solhart/nightloop/internal/config"
	"github.com/solhart/nightloop/internal/effect"
	"github.com/solhart/nightloop/internal/narrator"
	"github.com/solhart/nightloop/internal/scene"
	"github.com/solhart/nightloop/internal/session"
	"github.com/solhart/nightloop/internal/state"
	"github.com/solhart/nightloop/internal/stream"
)

// Engine owns a playthrough.
type Engine struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *state.Store
	scenes    *scene.Collection
	resolver  *scene.Resolver
	turns     *session.Manager
	client    *narrator.Client
	knowledge narrator.Knowledge
	events    chan Event

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu    sync.Mutex
	ended *effect.Ending
}

// New loads scenes, the save, and the knowledge base, and builds the
// engine. Scene and knowledge failures degrade, they never abort startup.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	scenes := scene.Load(ctx, cfg.ScenesSource, logger)
	knowledge, err := narrator.LoadKnowledge()
	if err != nil {
		logger.Warn("knowledge base unavailable", "err", err)
		knowledge = narrator.Knowledge{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		log:      logger,
		store:    state.NewStore(cfg.SavePath, logger),
		scenes:   scenes,
		resolver: scene.NewResolver(scenes),
		turns: session.NewManager(session.Config{
			Cooldown:    cfg.Cooldown,
			StallWindow: cfg.StallWindow,
			HardTimeout: cfg.HardTimeout,
			TurnBudget:  cfg.TurnBudget,
		}, logger, nil),
		client:     narrator.NewClient(cfg.NarratorURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, logger),
		knowledge:  knowledge,
		events:     make(chan Event, 64),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// Events is the stream the presentation layer renders from.
func (e *Engine) Events() <-chan Event { return e.events }

// World returns a snapshot safe for rendering.
func (e *Engine) World() state.World {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.World().Snapshot()
}

// Ended reports the reached ending, if any.
func (e *Engine) Ended() *effect.Ending {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// Start resumes the save or enters the opening scene.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.store.World()
	if w.CurrentScene != "" {
		if sc, ok := e.scenes.Get(w.CurrentScene); ok {
			e.emit(SceneEvent{Scene: sc, Location: sc.ID, Text: sc.RenderText(w)})
			return
		}
		if scene.IsDynamic(w.CurrentScene) {
			e.emit(SceneEvent{Location: w.CurrentScene, Text: "You are somewhere the map does not show."})
			return
		}
		// Save references a scene this document no longer has.
		e.log.Warn("saved scene missing from document, re-entering", "scene", w.CurrentScene)
	}
	if first := e.scenes.First(); first != nil {
		e.transitionLocked(first.ID, false)
	}
}

// Choose applies the idx-th choice of the current scene. Out-of-range
// picks and input after an ending are ignored. It reports whether the
// choice started a dialogue stream, so the caller knows to wait for a
// turn to settle.
func (e *Engine) Choose(idx int) bool {
	e.mu.Lock()
	w := e.store.World()
	sc, ok := e.scenes.Get(w.CurrentScene)
	if e.ended != nil || !ok || idx < 0 || idx >= len(sc.Choices) {
		e.mu.Unlock()
		return false
	}
	c := sc.Choices[idx]

	if shock := effect.Apply(w, c.Effects); shock.Triggered {
		e.emit(ShockEvent{Shock: shock})
	}
	w.MergeFlags(c.Flags)
	e.saveLocked()

	if c.Ending != "" {
		e.triggerEndingLocked(c.Ending)
		e.mu.Unlock()
		return false
	}
	if ending := effect.Evaluate(w); ending != nil {
		e.endLocked(ending)
		e.mu.Unlock()
		return false
	}

	if c.Kind() == scene.KindDialogue {
		e.mu.Unlock()
		return e.submitDialogue(c.Label)
	}
	e.transitionLocked(c.Next, true)
	e.mu.Unlock()
	return false
}

// Say submits free-typed player input as a dialogue turn. It reports
// whether the turn was admitted; a rejected submission (cooldown, turn
// already in flight) emits no events, so callers must not wait on one.
func (e *Engine) Say(text string) bool {
	e.mu.Lock()
	ended := e.ended != nil
	e.mu.Unlock()
	if ended || text == "" {
		return false
	}
	return e.submitDialogue(text)
}

// NextLoop advances into the next loop after an ending.
func (e *Engine) NextLoop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended == nil {
		return
	}
	e.ended = nil
	effect.AdvanceLoop(e.store.World())
	e.saveLocked()
	if first := e.scenes.First(); first != nil {
		e.transitionLocked(first.ID, false)
	}
}

// NewGame discards everything and starts over.
func (e *Engine) NewGame() {
	e.turns.Cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = nil
	e.store.Reset()
	e.saveLocked()
	if first := e.scenes.First(); first != nil {
		e.transitionLocked(first.ID, false)
	}
}

// Save persists on demand (the engine also saves at every mutation point).
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Save()
}

// Close cancels any in-flight stream and pending transitions.
func (e *Engine) Close() {
	e.turns.Cancel()
	e.baseCancel()
}

// transitionLocked resolves and enters the next scene. Callers hold e.mu,
// which serializes transitions. Visited-set and current-scene updates
// commit before any side effects.
func (e *Engine) transitionLocked(target string, explicit bool) {
	if e.ended != nil {
		return
	}

	w := e.store.World()
	sc, err := e.resolver.Resolve(target, w, explicit)
	if err != nil {
		if scene.IsDynamic(target) {
			w.Visit(target)
			e.saveLocked()
			e.emit(SceneEvent{Location: target, Text: "You are somewhere the map does not show."})
			if ending := effect.Evaluate(w); ending != nil {
				e.endLocked(ending)
			}
			return
		}
		// Unknown id or exhausted random pool: the night is over.
		ending := effect.Evaluate(w)
		if ending == nil {
			ending = effect.DefaultEnding()
		}
		e.endLocked(ending)
		return
	}

	w.Visit(sc.ID)
	e.saveLocked()
	e.emit(SceneEvent{Scene: sc, Location: sc.ID, Text: sc.RenderText(w)})
	if ending := effect.Evaluate(w); ending != nil {
		e.endLocked(ending)
	}
}

// submitDialogue runs one player<->narrator turn through the session
// manager. Rejected admissions vanish silently by contract; the boolean
// tells the caller whether a turn is actually in flight.
func (e *Engine) submitDialogue(userText string) bool {
	if !e.turns.Admit() {
		return false
	}

	e.mu.Lock()
	w := e.store.World()
	// Turn accounting is committed before the remote call so a crash
	// mid-stream cannot refund the turn.
	turn := w.NextTurn()
	w.AppendHistory(state.Entry{Speaker: "player", Text: userText})
	w.MergeFlags(map[string]any{"answered_signal": true})
	e.saveLocked()

	if e.turns.ExceedsBudget(turn) {
		e.turns.Release()
		e.triggerEndingLocked("silence")
		e.mu.Unlock()
		return false
	}

	current, _ := e.scenes.Get(w.CurrentScene)
	msgs, err := narrator.BuildMessages(w, current, e.knowledge.Facts(w.Flags), userText)
	e.mu.Unlock()
	if err != nil {
		e.turns.Release()
		e.log.Error("prompt assembly failed", "err", err)
		e.emit(SystemEvent{Text: "The transmitter refuses the message."})
		e.emit(TurnDoneEvent{})
		return false
	}

	go e.runTurn(uuid.NewString(), msgs)
	return true
}

func (e *Engine) runTurn(reqID string, msgs []narrator.Message) {
	parser := &stream.Parser{}
	e.log.Info("dialogue turn started", "req", reqID)

	res, err := e.turns.Run(e.baseCtx, func(ctx context.Context, touch func()) error {
		return e.client.Stream(ctx, msgs, func(delta string) {
			touch()
			if display, changed := parser.Feed(delta); changed {
				e.emit(NarrativeEvent{Text: display})
			}
		})
	})
	e.settle(reqID, parser, res, err)
}

// settle closes out a turn: history, system messaging, and the trailing
// directive (skipped when the stream was cancelled).
func (e *Engine) settle(reqID string, parser *stream.Parser, res session.Result, err error) {
	defer e.turns.Finish()

	if res == session.ResultCancelled {
		// Superseded or torn down: expected, silent, nothing applied.
		e.log.Debug("dialogue turn cancelled", "req", reqID)
		return
	}

	e.mu.Lock()
	w := e.store.World()
	if narrative := parser.Narrative(); narrative != "" {
		w.AppendHistory(state.Entry{Speaker: "narrator", Text: narrative})
	}

	switch res {
	case session.ResultStalled:
		e.log.Warn("dialogue stream stalled", "req", reqID)
		e.emit(SystemEvent{Text: "The connection goes quiet and times out. The night does not apologize."})
	case session.ResultTimedOut:
		e.log.Warn("dialogue stream hit hard timeout", "req", reqID)
		e.emit(SystemEvent{Text: "The exchange runs too long and the signal is cut."})
	case session.ResultFailed:
		e.log.Warn("dialogue stream failed", "req", reqID, "err", err)
		e.emit(SystemEvent{Text: "The signal drops mid-sentence. Whatever it meant to say is lost."})
	}

	// A directive is applied exactly once, and only from a stream that
	// ran to its end (normally or forced by a deadline). Failed transport
	// leaves the block untrusted.
	if res == session.ResultCompleted || res == session.ResultStalled || res == session.ResultTimedOut {
		dir, derr := parser.Directive()
		switch {
		case derr != nil:
			e.log.Warn("directive unparseable, narrative kept", "req", reqID, "err", derr)
		case dir != nil:
			e.applyDirectiveLocked(dir)
		}
	}
	e.saveLocked()
	e.mu.Unlock()

	e.emit(TurnDoneEvent{})
	e.log.Info("dialogue turn settled", "req", reqID, "result", int(res))
}

func (e *Engine) applyDirectiveLocked(dir *stream.Directive) {
	w := e.store.World()
	if shock := effect.Apply(w, dir.Effects); shock.Triggered {
		e.emit(ShockEvent{Shock: shock})
	}
	if dir.Ending != nil && *dir.Ending != "" {
		e.triggerEndingLocked(*dir.Ending)
		return
	}
	if ending := effect.Evaluate(w); ending != nil {
		e.endLocked(ending)
		return
	}
	if dir.Next != nil && *dir.Next != "" {
		next := *dir.Next
		// Grace period so the player can finish reading before the view
		// changes.
		time.AfterFunc(e.cfg.Grace, func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.transitionLocked(next, false)
		})
	}
}

func (e *Engine) triggerEndingLocked(id string) {
	ending, ok := effect.Find(id)
	if !ok {
		e.log.Warn("unknown ending id ignored", "ending", id)
		return
	}
	e.endLocked(ending)
}

func (e *Engine) endLocked(ending *effect.Ending) {
	if e.ended != nil {
		return
	}
	e.ended = ending
	e.saveLocked()
	e.emit(EndingEvent{Ending: ending})
}

func (e *Engine) saveLocked() {
	if err := e.store.Save(); err != nil {
		e.log.Error("save failed", "err", err)
	}
}

// emit never blocks the engine on a slow or absent consumer.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Warn("event dropped, consumer too slow")
	}
}
