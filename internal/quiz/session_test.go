package quiz_test

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/quiz/quiztest"
	appErrors "github.com/samintell/songquiz/pkg/errors"
)

type harness struct {
	registry *quiz.Registry
	clocks   *quiztest.Clocks
	events   *quiztest.Recorder
	now      *quiztest.FixedTime
	catalog  []quiz.Song
}

func newHarness(t *testing.T, songs int) *harness {
	t.Helper()
	h := &harness{
		clocks:  &quiztest.Clocks{},
		events:  &quiztest.Recorder{},
		now:     quiztest.NewFixedTime(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)),
		catalog: quiztest.Catalog(songs),
	}
	h.registry = quiz.NewRegistry(
		quiz.WithClockFactory(h.clocks.Factory),
		quiz.WithPublisher(h.events),
		quiz.WithNow(h.now.Now),
		quiz.WithRandSource(func() *rand.Rand { return seeded(3) }),
	)
	return h
}

func (h *harness) start(t *testing.T, channel string, rounds int) *quiz.Session {
	t.Helper()
	s, err := h.registry.Start(channel, "host", quiz.Config{Rounds: rounds, Timeout: 20 * time.Second}, h.catalog)
	require.NoError(t, err)
	return s
}

// openRound starts the next round and returns the title of the drawn song.
func (h *harness) openRound(t *testing.T, s *quiz.Session) string {
	t.Helper()
	_, err := s.Advance()
	require.NoError(t, err)
	presented := h.events.OfType(quiz.EventSongPresented)
	require.NotEmpty(t, presented)
	image := presented[len(presented)-1].(quiz.SongPresented).Media.Image
	for _, song := range h.catalog {
		if song.Media.Image == image {
			return song.Title
		}
	}
	t.Fatalf("presented unknown media %q", image)
	return ""
}

func TestSessionStartsWithLargerPool(t *testing.T) {
	h := newHarness(t, 12)
	s := h.start(t, "general", 10)

	snap := s.Snapshot()
	require.Equal(t, quiz.PhaseIdle, snap.Phase)
	require.Equal(t, 12, snap.PoolSize)
	require.Equal(t, 10, snap.Rounds)

	started := h.events.OfType(quiz.EventSessionStarted)
	require.Len(t, started, 1)
	require.Equal(t, 12, started[0].(quiz.SessionStarted).PoolSize)
}

func TestSessionStartFailsOnSmallPool(t *testing.T) {
	h := newHarness(t, 5)
	_, err := h.registry.Start("general", "host", quiz.Config{Rounds: 10, Timeout: 20 * time.Second}, h.catalog)
	require.ErrorIs(t, err, appErrors.ErrInsufficientPool)

	_, ok := h.registry.Get("general")
	require.False(t, ok)
	require.Empty(t, h.events.Events())
}

func TestFirstCorrectGuessWins(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 2)
	title := h.openRound(t, s)

	h.now.Advance(4 * time.Second)
	first := h.now.Now()
	second := first.Add(5 * time.Millisecond)

	res, err := s.SubmitGuess("alice", title, first)
	require.NoError(t, err)
	require.Equal(t, quiz.GuessWon, res.Verdict)

	res, err = s.SubmitGuess("bob", title, second)
	require.NoError(t, err)
	require.Equal(t, quiz.GuessIgnored, res.Verdict)

	resolved := h.events.Resolved()
	require.Len(t, resolved, 1)
	require.Equal(t, quiz.OutcomeWon, resolved[0].Outcome)
	require.Equal(t, "alice", *resolved[0].Winner)
	require.Equal(t, 4*time.Second, resolved[0].Elapsed)
	require.Equal(t, []quiz.Standing{{Participant: "alice", Points: 1}}, s.Leaderboard())

	clock := h.clocks.Last()
	require.Equal(t, quiz.ClockCancelled, clock.State())
	require.False(t, clock.Fire())
	require.Len(t, h.events.Resolved(), 1)
}

func TestWrongGuessKeepsRoundOpen(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 1)
	h.openRound(t, s)

	res, err := s.SubmitGuess("alice", "definitely not a title", time.Time{})
	require.NoError(t, err)
	require.Equal(t, quiz.GuessRejected, res.Verdict)
	require.Equal(t, quiz.PhaseAwaitingGuesses, s.Phase())

	res, err = s.SubmitGuess("alice", "   ", time.Time{})
	require.NoError(t, err)
	require.Equal(t, quiz.GuessRejected, res.Verdict)
	require.Zero(t, res.Score)
}

func TestTimeoutWithoutGuesses(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 2)
	h.openRound(t, s)

	h.now.Advance(20 * time.Second)
	require.True(t, h.clocks.Last().Fire())

	resolved := h.events.Resolved()
	require.Len(t, resolved, 1)
	require.Equal(t, quiz.OutcomeTimeout, resolved[0].Outcome)
	require.Nil(t, resolved[0].Winner)
	require.NotEmpty(t, resolved[0].Answer)
	require.Empty(t, resolved[0].Scores)
	require.Empty(t, s.Leaderboard())
	require.Equal(t, quiz.PhaseResolved, s.Phase())

	res, err := s.SubmitGuess("late", "Song 01", time.Time{})
	require.NoError(t, err)
	require.Equal(t, quiz.GuessIgnored, res.Verdict)
}

func TestGuessStampedBeforeRoundStartIsIgnored(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 2)
	before := h.now.Now()
	h.now.Advance(time.Second)
	title := h.openRound(t, s)

	res, err := s.SubmitGuess("alice", title, before)
	require.NoError(t, err)
	require.Equal(t, quiz.GuessIgnored, res.Verdict)
	require.Equal(t, quiz.PhaseAwaitingGuesses, s.Phase())
}

func TestSkipResolvesWithoutWinner(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 2)
	h.openRound(t, s)

	require.NoError(t, s.Skip("host"))
	resolved := h.events.Resolved()
	require.Len(t, resolved, 1)
	require.Equal(t, quiz.OutcomeSkipped, resolved[0].Outcome)
	require.Nil(t, resolved[0].Winner)
	require.Equal(t, quiz.ClockCancelled, h.clocks.Last().State())

	require.ErrorIs(t, s.Skip("host"), appErrors.ErrInvalidPhase)
}

func TestSessionCompletesAfterConfiguredRounds(t *testing.T) {
	h := newHarness(t, 12)
	s := h.start(t, "general", 3)

	winners := []string{"alice", "bob", "alice"}
	for _, who := range winners {
		title := h.openRound(t, s)
		_, err := s.SubmitGuess(who, title, time.Time{})
		require.NoError(t, err)
	}

	resolved := h.events.Resolved()
	require.Len(t, resolved, 3)
	require.True(t, resolved[2].Final)

	phase, err := s.Advance()
	require.NoError(t, err)
	require.Equal(t, quiz.PhaseEnded, phase)

	ended := h.events.OfType(quiz.EventSessionEnded)
	require.Len(t, ended, 1)
	final := ended[0].(quiz.SessionEnded)
	require.Equal(t, quiz.EndCompleted, final.Reason)
	require.Equal(t, 3, final.Played)
	require.Equal(t, []quiz.Standing{{Participant: "alice", Points: 2}, {Participant: "bob", Points: 1}}, final.Scores)

	_, ok := h.registry.Get("general")
	require.False(t, ok)
	require.Len(t, h.events.OfType(quiz.EventSongPresented), 3)
}

func TestAdvanceWhileRoundOpenFails(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 2)
	h.openRound(t, s)

	_, err := s.Advance()
	require.ErrorIs(t, err, appErrors.ErrInvalidPhase)
	require.ErrorIs(t, s.StartRound(), appErrors.ErrInvalidPhase)
}

func TestStopCancelsClockAndEvicts(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 2)
	title := h.openRound(t, s)

	ended, err := h.registry.Stop("general")
	require.NoError(t, err)
	require.Equal(t, quiz.EndStopped, ended.Reason)
	require.Equal(t, quiz.ClockCancelled, h.clocks.Last().State())
	require.True(t, s.Ended())

	_, ok := h.registry.Get("general")
	require.False(t, ok)

	_, err = h.registry.Stop("general")
	require.ErrorIs(t, err, appErrors.ErrNoActiveSession)

	_, err = s.SubmitGuess("alice", title, time.Time{})
	require.ErrorIs(t, err, appErrors.ErrNoActiveSession)
	require.Empty(t, h.events.Resolved())
}

func TestPoolExhaustedMidSessionFailsOnlyThatSession(t *testing.T) {
	events := &quiztest.Recorder{}
	clocks := &quiztest.Clocks{}
	pool, err := quiz.BuildPool(quiztest.Catalog(1), quiz.PoolOptions{Rounds: 1})
	require.NoError(t, err)

	var endedWith quiz.SessionEnded
	s := quiz.NewSession(quiz.SessionOptions{
		ID:        "s1",
		ChannelID: "broken",
		Config:    quiz.Config{Mode: quiz.ModeImage, AnswerField: quiz.AnswerTitle, Rounds: 3, Timeout: time.Second},
		Pool:      pool,
		Clocks:    clocks.Factory,
		Publisher: events,
		OnEnd:     func(_ *quiz.Session, e quiz.SessionEnded) { endedWith = e },
	})

	require.NoError(t, s.StartRound())
	require.True(t, clocks.Last().Fire())
	_, err = s.Advance()
	require.NoError(t, err)

	failures := events.OfType(quiz.EventSessionError)
	require.Len(t, failures, 1)
	require.Equal(t, quiz.ErrorPoolExhausted, failures[0].(quiz.SessionError).Kind)
	require.Equal(t, quiz.EndFailed, endedWith.Reason)
	require.Equal(t, quiz.PhaseEnded, s.Phase())

	h := newHarness(t, 3)
	other := h.start(t, "healthy", 1)
	require.Equal(t, quiz.PhaseIdle, other.Phase())
}

func TestConcurrentCorrectGuessesHaveOneWinner(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 1)
	title := h.openRound(t, s)

	const players = 50
	results := make([]quiz.GuessVerdict, players)
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _ := s.SubmitGuess(string(rune('A'+i%26))+string(rune('a'+i/26)), title, time.Time{})
			results[i] = res.Verdict
		}(i)
	}
	wg.Wait()

	won := 0
	for _, v := range results {
		if v == quiz.GuessWon {
			won++
		} else {
			require.Equal(t, quiz.GuessIgnored, v)
		}
	}
	require.Equal(t, 1, won)
	require.Len(t, h.events.Resolved(), 1)
}

func TestGuessRacingRealTimerResolvesOnce(t *testing.T) {
	limits := quiz.DefaultLimits()
	limits.MinTimeout = time.Millisecond

	for i := 0; i < 50; i++ {
		events := &quiztest.Recorder{}
		registry := quiz.NewRegistry(quiz.WithPublisher(events), quiz.WithLimits(limits))
		s, err := registry.Start("race", "host", quiz.Config{Rounds: 1, Timeout: time.Millisecond}, quiztest.Catalog(1))
		require.NoError(t, err)
		require.NoError(t, s.StartRound())

		time.Sleep(time.Millisecond)
		_, _ = s.SubmitGuess("alice", "Song 01", time.Time{})

		require.Eventually(t, func() bool {
			return s.Phase() == quiz.PhaseResolved
		}, time.Second, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		require.Len(t, events.Resolved(), 1)
	}
}

func TestSnapshotHidesAnswer(t *testing.T) {
	h := newHarness(t, 3)
	s := h.start(t, "general", 2)
	h.openRound(t, s)

	snap := s.Snapshot()
	require.Equal(t, quiz.PhaseAwaitingGuesses, snap.Phase)
	require.Equal(t, 1, snap.Round)
	require.NotNil(t, snap.Deadline)
	require.Equal(t, snap.RoundStart.Add(20*time.Second), *snap.Deadline)
	require.NotNil(t, snap.Media)
	require.Equal(t, 2, snap.Remaining)
}

func TestPresentationHints(t *testing.T) {
	h := newHarness(t, 3)
	s, err := h.registry.Start("audio", "host", quiz.Config{Mode: quiz.ModeAudio, Rounds: 1, Timeout: 20 * time.Second}, h.catalog)
	require.NoError(t, err)
	h.openRound(t, s)

	presented := h.events.OfType(quiz.EventSongPresented)
	audio := presented[len(presented)-1].(quiz.SongPresented)
	require.Equal(t, quiz.ModeAudio, audio.Mode)
	require.Equal(t, 10, audio.SnippetSeconds)
	require.Nil(t, audio.Crop)

	img, err := h.registry.Start("image", "host", quiz.Config{ImageCrop: quiz.CropHard, Rounds: 1, Timeout: 20 * time.Second}, h.catalog)
	require.NoError(t, err)
	h.openRound(t, img)

	presented = h.events.OfType(quiz.EventSongPresented)
	crop := presented[len(presented)-1].(quiz.SongPresented).Crop
	require.NotNil(t, crop)
	require.InDelta(t, 0.316, crop.Width, 1e-9)
	require.GreaterOrEqual(t, crop.Left, 0.0)
	require.LessOrEqual(t, crop.Left+crop.Width, 1.0)
}
