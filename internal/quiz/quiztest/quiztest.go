// Package quiztest provides deterministic clocks, recording publishers and catalog
// fixtures for quiz tests.
package quiztest

import (
	"fmt"
	"sync"
	"time"

	"github.com/samintell/songquiz/internal/quiz"
)

// ManualClock is a quiz.Clock that only fires when told to.
type ManualClock struct {
	mu       sync.Mutex
	state    quiz.ClockState
	duration time.Duration
	onExpire func()
}

func (c *ManualClock) Start(d time.Duration, onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != quiz.ClockIdle {
		return
	}
	c.state = quiz.ClockArmed
	c.duration = d
	c.onExpire = onExpire
}

func (c *ManualClock) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case quiz.ClockIdle, quiz.ClockArmed:
		c.state = quiz.ClockCancelled
		return true
	case quiz.ClockCancelled:
		return true
	default:
		return false
	}
}

func (c *ManualClock) State() quiz.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Duration is the countdown the clock was started with.
func (c *ManualClock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Fire runs the expiry callback if the clock is still armed. The callback runs without
// the clock lock held.
func (c *ManualClock) Fire() bool {
	c.mu.Lock()
	if c.state != quiz.ClockArmed {
		c.mu.Unlock()
		return false
	}
	c.state = quiz.ClockFired
	fn := c.onExpire
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}

// Clocks hands out ManualClocks and remembers them in creation order.
type Clocks struct {
	mu     sync.Mutex
	clocks []*ManualClock
}

// Factory satisfies quiz.ClockFactory.
func (c *Clocks) Factory() quiz.Clock {
	clock := &ManualClock{}
	c.mu.Lock()
	c.clocks = append(c.clocks, clock)
	c.mu.Unlock()
	return clock
}

// Last returns the most recently created clock.
func (c *Clocks) Last() *ManualClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.clocks) == 0 {
		return nil
	}
	return c.clocks[len(c.clocks)-1]
}

// All returns every clock created so far.
func (c *Clocks) All() []*ManualClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ManualClock(nil), c.clocks...)
}

// Recorder is a quiz.Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []quiz.Event
}

func (r *Recorder) Publish(e quiz.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []quiz.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]quiz.Event(nil), r.events...)
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t quiz.EventType) []quiz.Event {
	var out []quiz.Event
	for _, e := range r.Events() {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// Resolved returns the recorded RoundResolved events.
func (r *Recorder) Resolved() []quiz.RoundResolved {
	var out []quiz.RoundResolved
	for _, e := range r.OfType(quiz.EventRoundResolved) {
		out = append(out, e.(quiz.RoundResolved))
	}
	return out
}

// Catalog builds n distinct master charts, each followed by an expert chart sharing the
// same id. Titles are "Song 01", "Song 02" and so on.
func Catalog(n int) []quiz.Song {
	songs := make([]quiz.Song, 0, n*2)
	for i := 1; i <= n; i++ {
		base := quiz.Song{
			ID:        fmt.Sprintf("song-%02d", i),
			Title:     fmt.Sprintf("Song %02d", i),
			Romanized: fmt.Sprintf("Song %02d", i),
			Artist:    fmt.Sprintf("Artist %02d", i),
			Category:  "maimai",
			Version:   "FESTiVAL",
			Tier:      quiz.TierMaster,
			Level:     13 + float64(i%10)/10,
			Media:     quiz.MediaRef{Image: fmt.Sprintf("song-%02d.png", i), Audio: fmt.Sprintf("song-%02d.mp3", i)},
		}
		expert := base
		expert.Tier = "expert"
		expert.Level = 11
		songs = append(songs, base, expert)
	}
	return songs
}

// FixedTime returns a controllable clock for quiz.WithNow.
type FixedTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedTime starts at t.
func NewFixedTime(t time.Time) *FixedTime {
	return &FixedTime{now: t}
}

func (f *FixedTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *FixedTime) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}
