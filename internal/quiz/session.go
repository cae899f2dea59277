package quiz

import (
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/samintell/songquiz/pkg/errors"
	"github.com/samintell/songquiz/pkg/logger"
)

// Phase is the round lifecycle of a session.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseAwaitingGuesses Phase = "awaiting_guesses"
	PhaseResolved        Phase = "resolved"
	PhaseEnded           Phase = "ended"
)

// GuessVerdict is what happened to a submitted guess.
type GuessVerdict string

const (
	GuessWon      GuessVerdict = "won"
	GuessRejected GuessVerdict = "rejected"
	// GuessIgnored covers guesses outside an open round, including ones stamped before
	// the current round started.
	GuessIgnored GuessVerdict = "ignored"
)

// GuessResult is returned to the caller that submitted a guess.
type GuessResult struct {
	Verdict GuessVerdict `json:"verdict"`
	Round   int          `json:"round"`
	Score   float64      `json:"score"`
}

// SessionOptions wires a session to its collaborators.
type SessionOptions struct {
	ID        string
	ChannelID string
	HostID    string
	Config    Config
	Pool      *Pool
	Matcher   *Matcher
	Clocks    ClockFactory
	Publisher Publisher
	Now       func() time.Time
	Rand      *rand.Rand
	// OnEnd runs once, after the session ended and its lock was released.
	OnEnd func(*Session, SessionEnded)
}

type round struct {
	index     int
	song      Song
	startedAt time.Time
	deadline  time.Time
	resolved  bool
	winner    string
	clock     Clock
}

// Session is the per-channel quiz state machine. Every mutation happens under mu and
// publishes its events only after mu is released.
type Session struct {
	id        string
	channelID string
	hostID    string
	cfg       Config
	createdAt time.Time

	matcher   *Matcher
	clocks    ClockFactory
	publisher Publisher
	now       func() time.Time
	rng       *rand.Rand
	onEnd     func(*Session, SessionEnded)
	log       *zap.Logger

	ended atomic.Bool

	mu      sync.Mutex
	phase   Phase
	pool    *Pool
	current *round
	played  int
	scores  map[string]int
	results []RoundResolved
}

// NewSession builds an idle session. Most callers go through Registry.Start.
func NewSession(opts SessionOptions) *Session {
	s := &Session{
		id:        opts.ID,
		channelID: opts.ChannelID,
		hostID:    opts.HostID,
		cfg:       opts.Config,
		matcher:   opts.Matcher,
		clocks:    opts.Clocks,
		publisher: opts.Publisher,
		now:       opts.Now,
		rng:       opts.Rand,
		onEnd:     opts.OnEnd,
		phase:     PhaseIdle,
		pool:      opts.Pool,
		scores:    make(map[string]int),
	}
	if s.matcher == nil {
		s.matcher = NewMatcher(DefaultThreshold)
	}
	if s.clocks == nil {
		s.clocks = NewRoundClock
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s.createdAt = s.now()
	s.log = logger.WithChannel("quiz", s.channelID).With(zap.String("session_id", s.id))
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ChannelID() string { return s.channelID }
func (s *Session) HostID() string    { return s.hostID }
func (s *Session) Config() Config    { return s.cfg }

// Ended reports whether the session reached its terminal phase. It does not take the
// session lock.
func (s *Session) Ended() bool { return s.ended.Load() }

// StartRound draws the next song and opens it for guesses. It is valid from the idle
// and resolved phases. When every configured round was played the session ends instead.
func (s *Session) StartRound() error {
	s.mu.Lock()
	switch s.phase {
	case PhaseIdle, PhaseResolved:
	case PhaseEnded:
		s.mu.Unlock()
		return appErrors.ErrNoActiveSession
	default:
		s.mu.Unlock()
		return appErrors.ErrInvalidPhase.WithMessage("round %d is still open", s.current.index)
	}
	events, ended := s.startRoundLocked()
	s.mu.Unlock()

	s.emit(events, ended)
	return nil
}

// Advance moves past a resolved round: it opens the next one or completes the session.
func (s *Session) Advance() (Phase, error) {
	s.mu.Lock()
	switch s.phase {
	case PhaseResolved, PhaseIdle:
	case PhaseEnded:
		s.mu.Unlock()
		return PhaseEnded, appErrors.ErrNoActiveSession
	default:
		s.mu.Unlock()
		return s.phase, appErrors.ErrInvalidPhase.WithMessage("round %d is still open", s.current.index)
	}
	events, ended := s.startRoundLocked()
	phase := s.phase
	s.mu.Unlock()

	s.emit(events, ended)
	return phase, nil
}

// SubmitGuess checks text against the open round. The first accepted guess resolves the
// round; guesses arriving after that, or outside an open round, are ignored.
func (s *Session) SubmitGuess(participant, text string, receivedAt time.Time) (GuessResult, error) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return GuessResult{Verdict: GuessIgnored}, appErrors.ErrNoActiveSession
	}
	r := s.current
	if s.phase != PhaseAwaitingGuesses || r == nil || r.resolved {
		s.mu.Unlock()
		return GuessResult{Verdict: GuessIgnored}, nil
	}
	if !receivedAt.IsZero() && receivedAt.Before(r.startedAt) {
		s.mu.Unlock()
		return GuessResult{Verdict: GuessIgnored, Round: r.index}, nil
	}

	verdict := s.matcher.Check(text, r.song, s.cfg.AnswerField)
	if !verdict.Accepted {
		s.mu.Unlock()
		return GuessResult{Verdict: GuessRejected, Round: r.index, Score: verdict.Score}, nil
	}

	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	r.clock.Cancel()
	r.resolved = true
	r.winner = participant
	s.scores[participant]++
	s.phase = PhaseResolved
	event := s.resolvedEventLocked(OutcomeWon, receivedAt, text)
	s.mu.Unlock()

	s.log.Debug("round won",
		zap.Int("round", r.index),
		zap.String("participant", participant),
		zap.Float64("score", verdict.Score),
	)
	s.emit([]Event{event}, false)
	return GuessResult{Verdict: GuessWon, Round: r.index, Score: verdict.Score}, nil
}

// Skip resolves the open round without a winner. Who may skip is decided by the caller.
func (s *Session) Skip(participant string) error {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return appErrors.ErrNoActiveSession
	}
	if s.phase != PhaseAwaitingGuesses || s.current == nil || s.current.resolved {
		s.mu.Unlock()
		return appErrors.ErrInvalidPhase.WithMessage("no round is open")
	}
	s.current.clock.Cancel()
	s.current.resolved = true
	s.phase = PhaseResolved
	event := s.resolvedEventLocked(OutcomeSkipped, s.now(), "")
	s.mu.Unlock()

	s.log.Debug("round skipped", zap.Int("round", event.Round), zap.String("participant", participant))
	s.emit([]Event{event}, false)
	return nil
}

// Stop ends the session from any non-terminal phase and cancels the running clock.
func (s *Session) Stop() (SessionEnded, error) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return SessionEnded{}, appErrors.ErrNoActiveSession
	}
	event := s.endLocked(EndStopped)
	s.mu.Unlock()

	s.emit([]Event{event}, true)
	return event, nil
}

// Fail ends the session because a collaborator could not deliver its output.
func (s *Session) Fail(kind ErrorKind, cause error) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return
	}
	events := s.failLocked(kind, cause)
	s.mu.Unlock()

	s.emit(events, true)
}

// resolveTimeout is the clock callback for round index. It is a no-op when the round was
// already resolved or a later round is open.
func (s *Session) resolveTimeout(index int) {
	s.mu.Lock()
	r := s.current
	if s.phase != PhaseAwaitingGuesses || r == nil || r.index != index || r.resolved {
		s.mu.Unlock()
		return
	}
	r.resolved = true
	s.phase = PhaseResolved
	event := s.resolvedEventLocked(OutcomeTimeout, s.now(), "")
	s.mu.Unlock()

	s.log.Debug("round timed out", zap.Int("round", index))
	s.emit([]Event{event}, false)
}

func (s *Session) startRoundLocked() ([]Event, bool) {
	if s.played >= s.cfg.Rounds {
		return []Event{s.endLocked(EndCompleted)}, true
	}

	song, ok := s.pool.Draw()
	if !ok {
		cause := appErrors.ErrSessionFailed.WithMessage(
			"pool exhausted after %d of %d rounds", s.played, s.cfg.Rounds)
		return s.failLocked(ErrorPoolExhausted, cause), true
	}

	s.played++
	now := s.now()
	r := &round{
		index:     s.played,
		song:      song,
		startedAt: now,
		deadline:  now.Add(s.cfg.Timeout),
		clock:     s.clocks(),
	}
	s.current = r
	s.phase = PhaseAwaitingGuesses
	index := r.index
	r.clock.Start(s.cfg.Timeout, func() { s.resolveTimeout(index) })

	return []Event{SongPresented{
		EventMeta:      s.metaLocked(now),
		Round:          r.index,
		Rounds:         s.cfg.Rounds,
		Mode:           s.cfg.Mode,
		AnswerField:    s.cfg.AnswerField,
		Media:          song.Media,
		Crop:           s.cropLocked(),
		SnippetSeconds: s.snippetSeconds(),
		Deadline:       r.deadline,
	}}, false
}

// resolvedEventLocked builds the resolution of the current round and keeps it for the
// session's SessionEnded.
func (s *Session) resolvedEventLocked(outcome Outcome, at time.Time, guess string) RoundResolved {
	r := s.current
	event := RoundResolved{
		EventMeta: s.metaLocked(at),
		Round:     r.index,
		Rounds:    s.cfg.Rounds,
		Outcome:   outcome,
		Elapsed:   at.Sub(r.startedAt),
		Answer:    r.song.Answer(s.cfg.AnswerField),
		Song:      r.song,
		Scores:    s.standingsLocked(),
		Final:     r.index >= s.cfg.Rounds,
		Guess:     guess,
	}
	if outcome == OutcomeWon {
		winner := r.winner
		event.Winner = &winner
	}
	s.results = append(s.results, event)
	return event
}

func (s *Session) failLocked(kind ErrorKind, cause error) []Event {
	now := s.now()
	s.log.Error("session failed", zap.String("kind", string(kind)), zap.Error(cause))
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return []Event{
		SessionError{EventMeta: s.metaLocked(now), Kind: kind, Message: msg},
		s.endLocked(EndFailed),
	}
}

func (s *Session) endLocked(reason EndReason) SessionEnded {
	if s.current != nil && !s.current.resolved {
		s.current.clock.Cancel()
		s.current.resolved = true
	}
	s.phase = PhaseEnded
	s.ended.Store(true)
	return SessionEnded{
		EventMeta: s.metaLocked(s.now()),
		HostID:    s.hostID,
		Reason:    reason,
		Played:    s.played,
		Rounds:    s.cfg.Rounds,
		Config:    s.cfg,
		Started:   s.createdAt,
		Scores:    s.standingsLocked(),
		Results:   append([]RoundResolved(nil), s.results...),
	}
}

func (s *Session) emit(events []Event, ended bool) {
	for _, event := range events {
		s.publisher.Publish(event)
	}
	if !ended || s.onEnd == nil {
		return
	}
	for _, event := range events {
		if done, ok := event.(SessionEnded); ok {
			s.onEnd(s, done)
		}
	}
}

func (s *Session) metaLocked(at time.Time) EventMeta {
	return EventMeta{SessionID: s.id, ChannelID: s.channelID, At: at}
}

func (s *Session) cropLocked() *CropWindow {
	if s.cfg.Mode != ModeImage {
		return nil
	}
	var scale float64
	switch s.cfg.ImageCrop {
	case CropMedium:
		scale = 0.5
	case CropHard:
		// about a tenth of the area
		scale = 0.316
	default:
		return &CropWindow{Width: 1, Height: 1}
	}
	return &CropWindow{
		Left:   s.rng.Float64() * (1 - scale),
		Top:    s.rng.Float64() * (1 - scale),
		Width:  scale,
		Height: scale,
	}
}

func (s *Session) snippetSeconds() int {
	if s.cfg.Mode != ModeAudio {
		return 0
	}
	return s.cfg.SnippetSeconds
}

// Snapshot is a consistent read of a session as of its last transition.
type Snapshot struct {
	SessionID   string     `json:"session_id"`
	ChannelID   string     `json:"channel_id"`
	HostID      string     `json:"host_id"`
	Phase       Phase      `json:"phase"`
	Config      Config     `json:"config"`
	Round       int        `json:"round"`
	Rounds      int        `json:"rounds"`
	PoolSize    int        `json:"pool_size"`
	Remaining   int        `json:"remaining"`
	RoundStart  *time.Time `json:"round_started_at,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Media       *MediaRef  `json:"media,omitempty"`
	Leaderboard []Standing `json:"leaderboard"`
	StartedAt   time.Time  `json:"started_at"`
}

// Snapshot copies the public state of the session. The current answer is never included.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:   s.id,
		ChannelID:   s.channelID,
		HostID:      s.hostID,
		Phase:       s.phase,
		Config:      s.cfg,
		Rounds:      s.cfg.Rounds,
		PoolSize:    s.pool.Len(),
		Remaining:   s.pool.Remaining(),
		Leaderboard: s.standingsLocked(),
		StartedAt:   s.createdAt,
	}
	if r := s.current; r != nil {
		snap.Round = r.index
		if s.phase == PhaseAwaitingGuesses {
			started, deadline, media := r.startedAt, r.deadline, r.song.Media
			snap.RoundStart = &started
			snap.Deadline = &deadline
			snap.Media = &media
		}
	}
	return snap
}

// Leaderboard returns the scores ordered by points, highest first.
func (s *Session) Leaderboard() []Standing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standingsLocked()
}

// Phase reports the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) standingsLocked() []Standing {
	out := make([]Standing, 0, len(s.scores))
	for participant, points := range s.scores {
		out = append(out, Standing{Participant: participant, Points: points})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Participant < out[j].Participant
	})
	return out
}
