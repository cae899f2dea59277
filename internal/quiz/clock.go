package quiz

import (
	"sync"
	"sync/atomic"
	"time"
)

// ClockState is the lifecycle of a RoundClock.
type ClockState int32

const (
	ClockIdle ClockState = iota
	ClockArmed
	ClockFired
	ClockCancelled
)

func (s ClockState) String() string {
	switch s {
	case ClockArmed:
		return "armed"
	case ClockFired:
		return "fired"
	case ClockCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Clock is a one-shot countdown. For every instance at most one of {onExpire runs,
// Cancel succeeds} happens.
type Clock interface {
	Start(d time.Duration, onExpire func())
	// Cancel stops the countdown. It reports false when the clock already fired and is
	// safe to call any number of times.
	Cancel() bool
	State() ClockState
}

// ClockFactory returns a fresh clock for each round.
type ClockFactory func() Clock

// NewRoundClock is the ClockFactory backed by the runtime timer.
func NewRoundClock() Clock {
	return &RoundClock{}
}

// RoundClock implements Clock over time.AfterFunc. The transition out of the armed state
// is a compare-and-swap, so a timer firing concurrently with Cancel resolves to exactly
// one winner.
type RoundClock struct {
	state atomic.Int32
	mu    sync.Mutex
	timer *time.Timer
}

// Start arms the clock. Calls after the first are ignored.
func (c *RoundClock) Start(d time.Duration, onExpire func()) {
	if !c.state.CompareAndSwap(int32(ClockIdle), int32(ClockArmed)) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer = time.AfterFunc(d, func() {
		if c.state.CompareAndSwap(int32(ClockArmed), int32(ClockFired)) && onExpire != nil {
			onExpire()
		}
	})
}

func (c *RoundClock) Cancel() bool {
	if c.state.CompareAndSwap(int32(ClockArmed), int32(ClockCancelled)) ||
		c.state.CompareAndSwap(int32(ClockIdle), int32(ClockCancelled)) {
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
		}
		c.mu.Unlock()
		return true
	}
	return ClockState(c.state.Load()) == ClockCancelled
}

func (c *RoundClock) State() ClockState {
	return ClockState(c.state.Load())
}
