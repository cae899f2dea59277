package services

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/samintell/songquiz/internal/models"
	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/realtime"
	appErrors "github.com/samintell/songquiz/pkg/errors"
	"github.com/samintell/songquiz/pkg/logger"
	"github.com/samintell/songquiz/pkg/metrics"
)

// Skip policies decide who may skip a round or stop a quiz.
const (
	SkipPolicyHost   = "host"
	SkipPolicyAnyone = "anyone"
)

// Replies to realtime commands, sent only to the connection that issued them.
const (
	EventGuessResult = "quiz.guess.result"
	EventCommandFail = "quiz.command.error"
)

// SongCatalog supplies songs and resolves user supplied filters.
type SongCatalog interface {
	Songs() []quiz.Song
	ResolveCategories(inputs []string) ([]string, string, bool)
	ResolveVersions(inputs []string) ([]string, string, bool)
}

// Broadcaster delivers realtime messages to channel subscribers.
type Broadcaster interface {
	BroadcastStream(stream string, message realtime.Message)
}

// HistoryRecorder persists finished sessions.
type HistoryRecorder interface {
	Record(ctx context.Context, ended quiz.SessionEnded, rounds []quiz.RoundResolved) (*models.QuizSession, error)
}

// MediaChecker reports whether presented media can be delivered.
type MediaChecker interface {
	Present(mode quiz.Mode, ref quiz.MediaRef) bool
}

// QuizServiceConfig tunes pacing and policy of the quiz service.
type QuizServiceConfig struct {
	LeadIn         time.Duration
	Intermission   time.Duration
	SkipPolicy     string
	HistoryTimeout time.Duration
	ImagesURL      string
	AudioURL       string
}

func (c QuizServiceConfig) withDefaults() QuizServiceConfig {
	if c.LeadIn < 0 {
		c.LeadIn = 0
	}
	if c.Intermission < 0 {
		c.Intermission = 0
	}
	switch strings.ToLower(strings.TrimSpace(c.SkipPolicy)) {
	case SkipPolicyAnyone:
		c.SkipPolicy = SkipPolicyAnyone
	default:
		c.SkipPolicy = SkipPolicyHost
	}
	if c.HistoryTimeout <= 0 {
		c.HistoryTimeout = 5 * time.Second
	}
	if c.ImagesURL == "" {
		c.ImagesURL = "/media/images"
	}
	if c.AudioURL == "" {
		c.AudioURL = "/media/audio"
	}
	return c
}

// QuizServiceOption customises a QuizService.
type QuizServiceOption func(*QuizService)

// WithBroadcaster sets where session events are fanned out.
func WithBroadcaster(b Broadcaster) QuizServiceOption {
	return func(s *QuizService) {
		s.broadcaster = b
	}
}

// WithHistory enables persistence of finished sessions.
func WithHistory(h HistoryRecorder) QuizServiceOption {
	return func(s *QuizService) {
		s.history = h
	}
}

// WithMediaChecker fails sessions whose presented media is missing.
func WithMediaChecker(m MediaChecker) QuizServiceOption {
	return func(s *QuizService) {
		s.media = m
	}
}

// WithScheduler replaces time.AfterFunc for lead-in and intermission delays.
func WithScheduler(after func(time.Duration, func())) QuizServiceOption {
	return func(s *QuizService) {
		if after != nil {
			s.after = after
		}
	}
}

// WithRegistryOptions passes options to the owned session registry.
func WithRegistryOptions(opts ...quiz.RegistryOption) QuizServiceOption {
	return func(s *QuizService) {
		s.registryOpts = append(s.registryOpts, opts...)
	}
}

// StartQuizInput captures a start request. Zero values fall back to registry defaults.
type StartQuizInput struct {
	ChannelID      string
	HostID         string
	Mode           string
	AnswerField    string
	Rounds         int
	Timeout        time.Duration
	Tier           string
	Categories     []string
	Versions       []string
	ImageCrop      string
	SnippetSeconds int
}

// QuizService drives sessions between user commands, the round clock and collaborators.
// It is the registry's publisher: events are fanned out to the realtime hub, turned into
// metrics and, once a session ends, persisted.
type QuizService struct {
	registry     *quiz.Registry
	catalog      SongCatalog
	cfg          QuizServiceConfig
	broadcaster  Broadcaster
	history      HistoryRecorder
	media        MediaChecker
	after        func(time.Duration, func())
	registryOpts []quiz.RegistryOption
	log          *zap.Logger

	mu   sync.Mutex
	last map[string]replayable
}

// replayable is the configuration and host of a channel's most recent session.
type replayable struct {
	cfg    quiz.Config
	hostID string
}

// NewQuizService constructs a quiz service and the registry it owns.
func NewQuizService(catalog SongCatalog, cfg QuizServiceConfig, opts ...QuizServiceOption) (*QuizService, error) {
	if catalog == nil {
		return nil, errors.New("quiz service: catalog is required")
	}

	svc := &QuizService{
		catalog: catalog,
		cfg:     cfg.withDefaults(),
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		log:  logger.WithModule("quiz"),
		last: make(map[string]replayable),
	}
	for _, opt := range opts {
		opt(svc)
	}

	registryOpts := append([]quiz.RegistryOption{}, svc.registryOpts...)
	registryOpts = append(registryOpts, quiz.WithPublisher(svc))
	svc.registry = quiz.NewRegistry(registryOpts...)
	return svc, nil
}

// Registry exposes the owned session registry.
func (s *QuizService) Registry() *quiz.Registry {
	return s.registry
}

// Start validates the request, resolves filter aliases and opens a session. The first
// round begins after the configured lead-in.
func (s *QuizService) Start(ctx context.Context, input StartQuizInput) (*quiz.Session, error) {
	cfg := quiz.Config{
		Mode:           quiz.Mode(strings.ToLower(strings.TrimSpace(input.Mode))),
		AnswerField:    quiz.AnswerField(strings.ToLower(strings.TrimSpace(input.AnswerField))),
		Rounds:         input.Rounds,
		Timeout:        input.Timeout,
		Tier:           strings.ToLower(strings.TrimSpace(input.Tier)),
		ImageCrop:      quiz.ImageCrop(strings.ToLower(strings.TrimSpace(input.ImageCrop))),
		SnippetSeconds: input.SnippetSeconds,
	}

	categories, bad, ok := s.catalog.ResolveCategories(input.Categories)
	if !ok {
		return nil, s.startFailed(input.ChannelID, appErrors.ErrInvalidConfig.WithMessage("unknown category %q", bad))
	}
	versions, bad, ok := s.catalog.ResolveVersions(input.Versions)
	if !ok {
		return nil, s.startFailed(input.ChannelID, appErrors.ErrInvalidConfig.WithMessage("unknown version %q", bad))
	}
	cfg.Categories = categories
	cfg.Versions = versions

	return s.start(ctx, input.ChannelID, input.HostID, cfg)
}

// Replay starts a new session in channelID with the configuration of its previous one.
// Under the host policy only the previous host may replay.
func (s *QuizService) Replay(ctx context.Context, channelID, hostID string) (*quiz.Session, error) {
	channelID = strings.TrimSpace(channelID)
	hostID = strings.TrimSpace(hostID)
	s.mu.Lock()
	prev, ok := s.last[channelID]
	s.mu.Unlock()
	if !ok {
		return nil, appErrors.ErrNothingToReplay
	}
	if s.cfg.SkipPolicy == SkipPolicyHost && prev.hostID != "" && prev.hostID != hostID {
		return nil, s.startFailed(channelID, appErrors.ErrNotHost)
	}
	return s.start(ctx, channelID, hostID, prev.cfg)
}

func (s *QuizService) start(_ context.Context, channelID, hostID string, cfg quiz.Config) (*quiz.Session, error) {
	session, err := s.registry.Start(channelID, strings.TrimSpace(hostID), cfg, s.catalog.Songs())
	if err != nil {
		return nil, s.startFailed(channelID, err)
	}

	s.mu.Lock()
	s.last[session.ChannelID()] = replayable{cfg: session.Config(), hostID: session.HostID()}
	s.mu.Unlock()
	return session, nil
}

func (s *QuizService) startFailed(channelID string, err error) error {
	code := "internal"
	if appErr := appErrors.FromError(err); appErr != nil {
		code = appErr.Code
	}
	metrics.QuizStartFailures.WithLabelValues(code).Inc()
	s.log.Info("quiz start rejected", zap.String("channel", channelID), zap.String("code", code), zap.Error(err))
	return err
}

// Guess submits a participant's guess to the live session of channelID.
func (s *QuizService) Guess(channelID, participant, text string, receivedAt time.Time) (quiz.GuessResult, error) {
	participant = strings.TrimSpace(participant)
	if participant == "" {
		return quiz.GuessResult{Verdict: quiz.GuessIgnored}, appErrors.NewBadRequest("participant is required")
	}
	result, err := s.registry.Guess(strings.TrimSpace(channelID), participant, text, receivedAt)
	if err != nil {
		return result, err
	}
	metrics.Guesses.WithLabelValues(string(result.Verdict)).Inc()
	return result, nil
}

// Skip resolves the open round without a winner if participant may do so.
func (s *QuizService) Skip(channelID, participant string) error {
	session, err := s.authorise(channelID, participant)
	if err != nil {
		return err
	}
	return session.Skip(participant)
}

// Stop ends the live session of channelID if participant may do so.
func (s *QuizService) Stop(channelID, participant string) (quiz.SessionEnded, error) {
	session, err := s.authorise(channelID, participant)
	if err != nil {
		return quiz.SessionEnded{}, err
	}
	return session.Stop()
}

func (s *QuizService) authorise(channelID, participant string) (*quiz.Session, error) {
	session, ok := s.registry.Get(strings.TrimSpace(channelID))
	if !ok {
		return nil, appErrors.ErrNoActiveSession
	}
	if s.cfg.SkipPolicy == SkipPolicyHost && session.HostID() != "" && session.HostID() != strings.TrimSpace(participant) {
		return nil, appErrors.ErrNotHost
	}
	return session, nil
}

// Snapshot returns the public state of the live session of channelID.
func (s *QuizService) Snapshot(channelID string) (quiz.Snapshot, error) {
	session, ok := s.registry.Get(strings.TrimSpace(channelID))
	if !ok {
		return quiz.Snapshot{}, appErrors.ErrNoActiveSession
	}
	snap := session.Snapshot()
	if snap.Media != nil {
		media := s.publicMedia(*snap.Media)
		snap.Media = &media
	}
	return snap, nil
}

// Leaderboard returns the live standings of channelID.
func (s *QuizService) Leaderboard(channelID string) ([]quiz.Standing, error) {
	return s.registry.Leaderboard(strings.TrimSpace(channelID))
}

// Active lists channels with a running quiz.
func (s *QuizService) Active() []string {
	return s.registry.Active()
}

// Shutdown stops every live session so their history is written.
func (s *QuizService) Shutdown() int {
	stopped := s.registry.StopAll()
	if stopped > 0 {
		s.log.Info("stopped running quizzes", zap.Int("count", stopped))
	}
	return stopped
}

// HandleCommand serves guess, skip and stop commands sent over a realtime connection.
func (s *QuizService) HandleCommand(participant string, cmd realtime.Command, receivedAt time.Time) *realtime.Message {
	channel := strings.TrimSpace(cmd.Channel)
	if channel == "" {
		return commandError("", appErrors.NewBadRequest("channel is required"))
	}
	stream := realtime.QuizStream(channel)

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "guess":
		result, err := s.Guess(channel, participant, cmd.Text, receivedAt)
		if err != nil {
			return commandError(stream, err)
		}
		return &realtime.Message{Stream: stream, Event: EventGuessResult, Data: result}
	case "skip":
		if err := s.Skip(channel, participant); err != nil {
			return commandError(stream, err)
		}
		return nil
	case "stop":
		if _, err := s.Stop(channel, participant); err != nil {
			return commandError(stream, err)
		}
		return nil
	default:
		return commandError(stream, appErrors.NewBadRequest("unsupported action "+cmd.Action))
	}
}

func commandError(stream string, err error) *realtime.Message {
	appErr := appErrors.FromError(err)
	return &realtime.Message{
		Stream: stream,
		Event:  EventCommandFail,
		Data:   map[string]string{"code": appErr.Code, "message": appErr.Message},
	}
}

// Publish implements quiz.Publisher. It runs after the session released its lock.
func (s *QuizService) Publish(event quiz.Event) {
	switch e := event.(type) {
	case quiz.SessionStarted:
		s.broadcast(e)
		s.after(s.cfg.LeadIn, func() { s.openRound(e.ChannelID, e.SessionID) })

	case quiz.SongPresented:
		if s.media != nil && !s.media.Present(e.Mode, e.Media) {
			s.failDelivery(e)
			return
		}
		e.Media = s.publicMedia(e.Media)
		s.broadcast(e)

	case quiz.RoundResolved:
		metrics.RoundsResolved.WithLabelValues(string(e.Outcome)).Inc()
		if e.Outcome == quiz.OutcomeWon {
			metrics.TimeToAnswer.Observe(e.Elapsed.Seconds())
		}
		// A stop that won the race already published SessionEnded, which carries
		// this round.
		if _, live := s.session(e.ChannelID, e.SessionID); !live {
			s.log.Debug("dropping resolution of ended session",
				zap.String("channel", e.ChannelID),
				zap.String("session_id", e.SessionID),
				zap.Int("round", e.Round),
			)
			return
		}

		e.Song.Media = s.publicMedia(e.Song.Media)
		s.broadcast(e)
		s.after(s.cfg.Intermission, func() { s.advance(e.ChannelID, e.SessionID) })

	case quiz.SessionEnded:
		metrics.QuizSessions.WithLabelValues(string(e.Reason)).Inc()
		s.broadcast(e)
		s.persist(e)

	case quiz.SessionError:
		s.log.Warn("quiz session error",
			zap.String("channel", e.ChannelID),
			zap.String("session_id", e.SessionID),
			zap.String("kind", string(e.Kind)),
			zap.String("message", e.Message),
		)
		s.broadcast(e)

	default:
		s.broadcast(event)
	}
}

func (s *QuizService) broadcast(event quiz.Event) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastStream(realtime.QuizStream(event.Channel()), realtime.Message{
		Event: string(event.EventType()),
		Data:  event,
	})
}

// session returns the live session of channelID only if it is still sessionID.
func (s *QuizService) session(channelID, sessionID string) (*quiz.Session, bool) {
	session, ok := s.registry.Get(channelID)
	if !ok || session.ID() != sessionID {
		return nil, false
	}
	return session, true
}

func (s *QuizService) openRound(channelID, sessionID string) {
	session, ok := s.session(channelID, sessionID)
	if !ok {
		return
	}
	if err := session.StartRound(); err != nil && !errors.Is(err, appErrors.ErrNoActiveSession) {
		s.log.Debug("first round not started", zap.String("channel", channelID), zap.Error(err))
	}
}

func (s *QuizService) advance(channelID, sessionID string) {
	session, ok := s.session(channelID, sessionID)
	if !ok {
		return
	}
	if _, err := session.Advance(); err != nil && !errors.Is(err, appErrors.ErrNoActiveSession) {
		s.log.Debug("advance skipped", zap.String("channel", channelID), zap.Error(err))
	}
}

func (s *QuizService) failDelivery(e quiz.SongPresented) {
	session, ok := s.session(e.ChannelID, e.SessionID)
	if !ok {
		return
	}
	session.Fail(quiz.ErrorDelivery, appErrors.ErrSessionFailed.WithMessage("%s for round %d is unavailable", e.Mode, e.Round))
}

func (s *QuizService) persist(e quiz.SessionEnded) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HistoryTimeout)
	defer cancel()
	if _, err := s.history.Record(ctx, e, e.Results); err != nil {
		s.log.Error("failed to record quiz history",
			zap.String("channel", e.ChannelID),
			zap.String("session_id", e.SessionID),
			zap.Error(err),
		)
	}
}

func (s *QuizService) publicMedia(ref quiz.MediaRef) quiz.MediaRef {
	var out quiz.MediaRef
	if ref.Image != "" {
		out.Image = path.Join(s.cfg.ImagesURL, filepath.Base(ref.Image))
	}
	if ref.Audio != "" {
		out.Audio = path.Join(s.cfg.AudioURL, filepath.Base(ref.Audio))
	}
	return out
}
