package quiz

import (
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/samintell/songquiz/pkg/errors"
	"github.com/samintell/songquiz/pkg/logger"
	"github.com/samintell/songquiz/pkg/metrics"
)

// Registry maps channels to their single live session. Registry methods never take a
// session lock while holding the registry lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	matcher   *Matcher
	clocks    ClockFactory
	publisher Publisher
	available func(Mode, Song) bool
	limits    Limits
	timeNow   func() time.Time
	newRand   func() *rand.Rand
	newID     func() string
	log       *zap.Logger
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithMatcher sets the matcher shared by all sessions.
func WithMatcher(m *Matcher) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.matcher = m
		}
	}
}

// WithClockFactory replaces the runtime round clock.
func WithClockFactory(f ClockFactory) RegistryOption {
	return func(r *Registry) {
		if f != nil {
			r.clocks = f
		}
	}
}

// WithPublisher sets where session events are delivered.
func WithPublisher(p Publisher) RegistryOption {
	return func(r *Registry) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithAvailability restricts pools to songs whose media can be presented in the
// session's mode.
func WithAvailability(fn func(Mode, Song) bool) RegistryOption {
	return func(r *Registry) {
		r.available = fn
	}
}

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) RegistryOption {
	return func(r *Registry) {
		r.limits = l
	}
}

// WithNow overrides the time source.
func WithNow(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.timeNow = fn
		}
	}
}

// WithRandSource supplies the generator used for each new session's shuffle.
func WithRandSource(fn func() *rand.Rand) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newRand = fn
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:  make(map[string]*Session),
		matcher:   NewMatcher(DefaultThreshold),
		clocks:    NewRoundClock,
		publisher: nopPublisher{},
		limits:    DefaultLimits(),
		timeNow:   time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		newID: func() string { return uuid.NewString() },
		log:   logger.WithModule("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limits reports the configured bounds.
func (r *Registry) Limits() Limits {
	return r.limits
}

// Start creates the session for channelID. It fails with ErrSessionAlreadyActive when the
// channel already has a live session, and with a pool or config error before anything
// is registered.
func (r *Registry) Start(channelID, hostID string, cfg Config, catalog []Song) (*Session, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, appErrors.ErrInvalidConfig.WithMessage("channel id is required")
	}
	cfg = cfg.WithDefaults(r.limits)
	if err := cfg.Validate(r.limits); err != nil {
		return nil, err
	}
	if r.live(channelID) != nil {
		return nil, appErrors.ErrSessionAlreadyActive
	}

	var available func(Song) bool
	if r.available != nil {
		mode := cfg.Mode
		available = func(s Song) bool { return r.available(mode, s) }
	}

	rng := r.newRand()
	pool, err := BuildPool(catalog, PoolOptions{
		Tier:       cfg.Tier,
		Categories: cfg.Categories,
		Versions:   cfg.Versions,
		Available:  available,
		Rounds:     cfg.Rounds,
		Rand:       rng,
	})
	if err != nil {
		return nil, err
	}

	session := NewSession(SessionOptions{
		ID:        r.newID(),
		ChannelID: channelID,
		HostID:    hostID,
		Config:    cfg,
		Pool:      pool,
		Matcher:   r.matcher,
		Clocks:    r.clocks,
		Publisher: r.publisher,
		Now:       r.timeNow,
		Rand:      rng,
		OnEnd: func(s *Session, _ SessionEnded) {
			r.evict(s.ChannelID(), s.ID())
		},
	})

	r.mu.Lock()
	if existing := r.sessions[channelID]; existing != nil && !existing.Ended() {
		r.mu.Unlock()
		return nil, appErrors.ErrSessionAlreadyActive
	}
	r.sessions[channelID] = session
	active := r.countLocked()
	r.mu.Unlock()

	metrics.ActiveQuizzes.Set(float64(active))
	r.log.Info("quiz session started",
		zap.String("channel", channelID),
		zap.String("session_id", session.ID()),
		zap.Int("rounds", cfg.Rounds),
		zap.Int("pool_size", pool.Len()),
	)
	r.publisher.Publish(SessionStarted{
		EventMeta: EventMeta{SessionID: session.ID(), ChannelID: channelID, At: session.createdAt},
		HostID:    hostID,
		Config:    cfg,
		PoolSize:  pool.Len(),
	})
	return session, nil
}

// Get returns the live session of channelID.
func (r *Registry) Get(channelID string) (*Session, bool) {
	s := r.live(channelID)
	return s, s != nil
}

// Stop ends the live session of channelID. The session evicts itself once ended.
func (r *Registry) Stop(channelID string) (SessionEnded, error) {
	s := r.live(channelID)
	if s == nil {
		return SessionEnded{}, appErrors.ErrNoActiveSession
	}
	return s.Stop()
}

// Guess forwards a guess to the live session of channelID.
func (r *Registry) Guess(channelID, participant, text string, receivedAt time.Time) (GuessResult, error) {
	s := r.live(channelID)
	if s == nil {
		return GuessResult{Verdict: GuessIgnored}, appErrors.ErrNoActiveSession
	}
	return s.SubmitGuess(participant, text, receivedAt)
}

// Skip forces a no-winner resolution of the open round of channelID.
func (r *Registry) Skip(channelID, participant string) error {
	s := r.live(channelID)
	if s == nil {
		return appErrors.ErrNoActiveSession
	}
	return s.Skip(participant)
}

// Advance moves the live session of channelID to its next round.
func (r *Registry) Advance(channelID string) (Phase, error) {
	s := r.live(channelID)
	if s == nil {
		return PhaseEnded, appErrors.ErrNoActiveSession
	}
	return s.Advance()
}

// Leaderboard returns the current standings of channelID.
func (r *Registry) Leaderboard(channelID string) ([]Standing, error) {
	s := r.live(channelID)
	if s == nil {
		return nil, appErrors.ErrNoActiveSession
	}
	return s.Leaderboard(), nil
}

// Active lists the channels that currently have a live session.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]string, 0, len(r.sessions))
	for channel, s := range r.sessions {
		if !s.Ended() {
			channels = append(channels, channel)
		}
	}
	sort.Strings(channels)
	return channels
}

// StopAll ends every live session, used on shutdown.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	stopped := 0
	for _, s := range sessions {
		if _, err := s.Stop(); err == nil {
			stopped++
		}
	}
	return stopped
}

func (r *Registry) live(channelID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[channelID]
	if s == nil || s.Ended() {
		return nil
	}
	return s
}

func (r *Registry) evict(channelID, sessionID string) {
	r.mu.Lock()
	current := r.sessions[channelID]
	removed := current != nil && current.ID() == sessionID
	if removed {
		delete(r.sessions, channelID)
	}
	active := r.countLocked()
	r.mu.Unlock()

	if removed {
		metrics.ActiveQuizzes.Set(float64(active))
		r.log.Debug("quiz session evicted", zap.String("channel", channelID), zap.String("session_id", sessionID))
	}
}

func (r *Registry) countLocked() int {
	n := 0
	for _, s := range r.sessions {
		if !s.Ended() {
			n++
		}
	}
	return n
}
