package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock steps time manually for admission tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAdmissionCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager(Config{Cooldown: 1500 * time.Millisecond}, discardLogger(), clock.now)

	// First submission is admitted; spend and settle the turn instantly.
	require.True(t, m.Admit())
	m.Release()

	// Second submission inside the window vanishes silently.
	clock.advance(500 * time.Millisecond)
	assert.False(t, m.Admit())

	// Third submission after the cooldown elapses is admitted.
	clock.advance(1100 * time.Millisecond)
	assert.True(t, m.Admit())
}

func TestAdmissionRejectsWhileInFlight(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager(Config{Cooldown: time.Millisecond}, discardLogger(), clock.now)

	require.True(t, m.Admit())
	clock.advance(time.Hour)
	// Still admitted/streaming: cooldown alone does not readmit.
	assert.False(t, m.Admit())

	m.Release()
	assert.True(t, m.Admit())
}

func TestExceedsBudget(t *testing.T) {
	m := NewManager(Config{TurnBudget: 12}, discardLogger(), nil)
	assert.False(t, m.ExceedsBudget(12))
	assert.True(t, m.ExceedsBudget(13))

	unlimited := NewManager(Config{}, discardLogger(), nil)
	assert.False(t, unlimited.ExceedsBudget(10_000))
}

func TestRunCompletes(t *testing.T) {
	m := NewManager(Config{StallWindow: time.Second, HardTimeout: 5 * time.Second}, discardLogger(), nil)
	require.True(t, m.Admit())

	res, err := m.Run(context.Background(), func(ctx context.Context, touch func()) error {
		touch()
		return nil
	})
	assert.Equal(t, ResultCompleted, res)
	assert.NoError(t, err)
	assert.Equal(t, PhaseSettling, m.Phase())

	m.Finish()
	assert.Equal(t, PhaseIdle, m.Phase())
}

func TestRunStallWatchdog(t *testing.T) {
	m := NewManager(Config{StallWindow: 30 * time.Millisecond, HardTimeout: 5 * time.Second}, discardLogger(), nil)
	require.True(t, m.Admit())

	res, _ := m.Run(context.Background(), func(ctx context.Context, touch func()) error {
		<-ctx.Done() // no chunks ever arrive
		return ctx.Err()
	})
	assert.Equal(t, ResultStalled, res)
	assert.Equal(t, PhaseSettling, m.Phase(), "a stall still settles whatever arrived")
}

func TestRunTouchFeedsWatchdog(t *testing.T) {
	m := NewManager(Config{StallWindow: 60 * time.Millisecond, HardTimeout: 5 * time.Second}, discardLogger(), nil)
	require.True(t, m.Admit())

	res, err := m.Run(context.Background(), func(ctx context.Context, touch func()) error {
		// Chunks keep arriving well past the stall window.
		for i := 0; i < 10; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
				touch()
			}
		}
		return nil
	})
	assert.Equal(t, ResultCompleted, res)
	assert.NoError(t, err)
}

func TestRunHardTimeout(t *testing.T) {
	m := NewManager(Config{StallWindow: time.Second, HardTimeout: 50 * time.Millisecond}, discardLogger(), nil)
	require.True(t, m.Admit())

	res, _ := m.Run(context.Background(), func(ctx context.Context, touch func()) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
				touch() // progress never satisfies the hard deadline
			}
		}
	})
	assert.Equal(t, ResultTimedOut, res)
}

func TestCancelIsSilent(t *testing.T) {
	m := NewManager(Config{StallWindow: time.Minute, HardTimeout: time.Minute}, discardLogger(), nil)
	require.True(t, m.Admit())

	done := make(chan struct{})
	var res Result
	var err error
	go func() {
		res, err = m.Run(context.Background(), func(ctx context.Context, touch func()) error {
			<-ctx.Done()
			return ctx.Err()
		})
		close(done)
	}()

	// Let the stream start, then supersede it.
	time.Sleep(20 * time.Millisecond)
	m.Cancel()
	<-done

	assert.Equal(t, ResultCancelled, res)
	assert.NoError(t, err, "cancellation is an expected outcome, not an error")
	assert.Equal(t, PhaseAborted, m.Phase())

	m.Finish()
	assert.Equal(t, PhaseIdle, m.Phase())
}

func TestRunFailure(t *testing.T) {
	m := NewManager(Config{StallWindow: time.Minute, HardTimeout: time.Minute}, discardLogger(), nil)
	require.True(t, m.Admit())

	res, err := m.Run(context.Background(), func(ctx context.Context, touch func()) error {
		return io.ErrUnexpectedEOF
	})
	assert.Equal(t, ResultFailed, res)
	assert.Error(t, err)
}
