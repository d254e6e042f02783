// Package session governs the lifecycle of one free-text dialogue turn:
// admission control, cooperative cancellation, and the two independent
// deadlines (stall watchdog, hard timeout) bounding the stream.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Phase of the turn state machine:
// Idle -> Admitted -> Streaming -> Settling -> Idle, or -> Aborted -> Idle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAdmitted
	PhaseStreaming
	PhaseSettling
	PhaseAborted
)

// Result classifies how a stream ended.
type Result int

const (
	ResultCompleted Result = iota
	ResultStalled          // watchdog fired: no chunk within the stall window
	ResultTimedOut         // hard deadline on the whole session
	ResultCancelled        // superseded or torn down; expected, silent
	ResultFailed           // transport or protocol error
)

// Config tunes the manager. Zero durations disable the matching deadline.
type Config struct {
	Cooldown    time.Duration
	StallWindow time.Duration
	HardTimeout time.Duration
	TurnBudget  int
}

// Manager serializes dialogue turns: at most one stream in flight, a
// cooldown between admissions, and cooperative cancellation of whatever
// is running.
type Manager struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu          sync.Mutex
	phase       Phase
	cancel      context.CancelFunc
	lastAdmit   time.Time
	hasAdmitted bool
	stalled     bool
	timedOut    bool
	superseded  bool
}

// NewManager builds a manager. The clock is injectable for tests; nil
// means time.Now.
func NewManager(cfg Config, logger *slog.Logger, now func() time.Time) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{cfg: cfg, log: logger, now: now}
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Admit decides whether a new turn may start. Rejection is a silent
// no-op by contract: rapid duplicate submissions simply disappear. A turn
// is admitted only when nothing is in flight and the cooldown since the
// last admission has elapsed.
func (m *Manager) Admit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseIdle {
		return false
	}
	now := m.now()
	if m.hasAdmitted && now.Sub(m.lastAdmit) < m.cfg.Cooldown {
		return false
	}
	m.lastAdmit = now
	m.hasAdmitted = true
	m.phase = PhaseAdmitted
	return true
}

// ExceedsBudget reports whether the given turn number is past the per-loop
// budget.
func (m *Manager) ExceedsBudget(turn int) bool {
	return m.cfg.TurnBudget > 0 && turn > m.cfg.TurnBudget
}

// Release returns an admitted turn to idle without running it; used when
// the budget check spends the turn before any model call.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseIdle
}

// Run executes the streaming function under both deadlines. fn receives
// the cancellation context and a touch callback it must invoke on every
// received chunk to feed the stall watchdog. Run leaves the manager in
// PhaseSettling (or PhaseAborted on cancellation); the caller settles the
// turn and then calls Finish.
func (m *Manager) Run(parent context.Context, fn func(ctx context.Context, touch func()) error) (Result, error) {
	m.mu.Lock()
	if m.cancel != nil {
		// A superseded stream must be signalled before the new one starts.
		m.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.phase = PhaseStreaming
	m.stalled = false
	m.timedOut = false
	m.superseded = false
	m.mu.Unlock()
	defer cancel()

	var hard, watchdog *time.Timer
	if m.cfg.HardTimeout > 0 {
		hard = time.AfterFunc(m.cfg.HardTimeout, func() {
			m.mu.Lock()
			m.timedOut = true
			m.mu.Unlock()
			cancel()
		})
		defer hard.Stop()
	}
	if m.cfg.StallWindow > 0 {
		watchdog = time.AfterFunc(m.cfg.StallWindow, func() {
			m.mu.Lock()
			m.stalled = true
			m.mu.Unlock()
			cancel()
		})
		defer watchdog.Stop()
	}
	touch := func() {
		if watchdog != nil {
			watchdog.Reset(m.cfg.StallWindow)
		}
	}

	err := fn(ctx, touch)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.superseded || errors.Is(parent.Err(), context.Canceled):
		m.phase = PhaseAborted
		return ResultCancelled, nil
	case m.stalled:
		m.phase = PhaseSettling
		return ResultStalled, err
	case m.timedOut:
		m.phase = PhaseSettling
		return ResultTimedOut, err
	case err != nil && errors.Is(err, context.Canceled):
		m.phase = PhaseAborted
		return ResultCancelled, nil
	case err != nil:
		m.phase = PhaseSettling
		return ResultFailed, err
	default:
		m.phase = PhaseSettling
		return ResultCompleted, nil
	}
}

// Cancel cooperatively stops the in-flight stream, if any. Used when a new
// turn supersedes an old one or on component teardown. Never an error.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.superseded = true
		m.cancel()
	}
}

// Finish returns the manager to idle once the caller has settled (or
// discarded) the turn.
func (m *Manager) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseIdle
	m.cancel = nil
}
