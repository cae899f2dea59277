package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/samintell/songquiz/internal/database/testutil"
	"github.com/samintell/songquiz/internal/models"
	"github.com/samintell/songquiz/internal/quiz"
	appErrors "github.com/samintell/songquiz/pkg/errors"
)

func endedSession(id, channel string, endedAt time.Time, winners ...string) (quiz.SessionEnded, []quiz.RoundResolved) {
	scores := map[string]int{}
	var rounds []quiz.RoundResolved
	for i, w := range winners {
		r := quiz.RoundResolved{
			EventMeta: quiz.EventMeta{SessionID: id, ChannelID: channel, At: endedAt.Add(-time.Minute)},
			Round:     i + 1,
			Rounds:    len(winners),
			Outcome:   quiz.OutcomeTimeout,
			Answer:    "Song",
			Song:      quiz.Song{ID: "song"},
			Elapsed:   1500 * time.Millisecond,
		}
		if w != "" {
			winner := w
			r.Outcome = quiz.OutcomeWon
			r.Winner = &winner
			r.Guess = "song"
			scores[w]++
		}
		rounds = append(rounds, r)
	}

	var standings []quiz.Standing
	for p, pts := range scores {
		standings = append(standings, quiz.Standing{Participant: p, Points: pts})
	}
	if len(standings) == 2 && standings[0].Points < standings[1].Points {
		standings[0], standings[1] = standings[1], standings[0]
	}

	return quiz.SessionEnded{
		EventMeta: quiz.EventMeta{SessionID: id, ChannelID: channel, At: endedAt},
		HostID:    "host",
		Reason:    quiz.EndCompleted,
		Played:    len(winners),
		Rounds:    len(winners),
		Config:    quiz.Config{Mode: quiz.ModeImage, AnswerField: quiz.AnswerTitle, Rounds: len(winners), Timeout: 20 * time.Second},
		Started:   endedAt.Add(-10 * time.Minute),
		Scores:    standings,
	}, rounds
}

func TestHistoryService_RecordAndGet(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewHistoryService(db)
	require.NoError(t, err)

	ctx := context.Background()
	ended, rounds := endedSession("11111111-1111-1111-1111-111111111111", "general", time.Now().UTC(), "alice", "", "alice")

	record, err := svc.Record(ctx, ended, rounds)
	require.NoError(t, err)
	require.Equal(t, ended.SessionID, record.ID)
	require.Equal(t, "alice", record.TopScorer)
	require.Equal(t, 20, record.TimeoutSeconds)

	loaded, err := svc.Get(ctx, ended.SessionID)
	require.NoError(t, err)
	require.Len(t, loaded.Rounds, 3)
	require.Equal(t, 1, loaded.Rounds[0].RoundIndex)
	require.Equal(t, string(quiz.OutcomeTimeout), loaded.Rounds[1].Outcome)
	require.Nil(t, loaded.Rounds[1].Winner)
	require.EqualValues(t, 1500, loaded.Rounds[0].ElapsedMillis)

	var scores []quiz.Standing
	require.NoError(t, json.Unmarshal(loaded.Scores, &scores))
	require.Equal(t, []quiz.Standing{{Participant: "alice", Points: 2}}, scores)

	_, err = svc.Get(ctx, "22222222-2222-2222-2222-222222222222")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Record(ctx, ended, rounds)
	require.ErrorIs(t, err, ErrAlreadyRecorded)
}

func TestIsUniqueConstraintError(t *testing.T) {
	require.False(t, isUniqueConstraintError(nil))
	require.True(t, isUniqueConstraintError(gorm.ErrDuplicatedKey))
	require.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	require.True(t, isUniqueConstraintError(&mysql.MySQLError{Number: 1062}))
	require.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: quiz_sessions.id")))
	require.False(t, isUniqueConstraintError(errors.New("FOREIGN KEY constraint failed")))
}

func TestHistoryService_ListRecentAndLeaderboard(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewHistoryService(db)
	require.NoError(t, err)

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	fixtures := []struct {
		id      string
		channel string
		at      time.Time
		winners []string
	}{
		{"aaaaaaaa-0000-0000-0000-000000000001", "general", base, []string{"alice", "bob"}},
		{"aaaaaaaa-0000-0000-0000-000000000002", "general", base.Add(time.Hour), []string{"bob", "bob"}},
		{"aaaaaaaa-0000-0000-0000-000000000003", "random", base.Add(2 * time.Hour), []string{"carol"}},
	}
	for _, f := range fixtures {
		ended, rounds := endedSession(f.id, f.channel, f.at, f.winners...)
		_, err := svc.Record(ctx, ended, rounds)
		require.NoError(t, err)
	}

	recent, err := svc.ListRecent(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, fixtures[1].id, recent[0].ID)

	all, err := svc.ListRecent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, fixtures[2].id, all[0].ID)

	board, err := svc.Leaderboard(ctx, "general", 10)
	require.NoError(t, err)
	require.Equal(t, []ChannelStanding{
		{Participant: "bob", Wins: 3, Sessions: 2},
		{Participant: "alice", Wins: 1, Sessions: 1},
	}, board)

	_, err = svc.Leaderboard(ctx, " ", 10)
	require.ErrorIs(t, err, appErrors.ErrBadRequest)
}

func TestHistoryService_Prune(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewHistoryService(db)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old, oldRounds := endedSession("bbbbbbbb-0000-0000-0000-000000000001", "general", now.AddDate(0, 0, -40), "alice")
	fresh, freshRounds := endedSession("bbbbbbbb-0000-0000-0000-000000000002", "general", now.AddDate(0, 0, -1), "bob")
	_, err = svc.Record(ctx, old, oldRounds)
	require.NoError(t, err)
	_, err = svc.Record(ctx, fresh, freshRounds)
	require.NoError(t, err)

	removed, err := svc.Prune(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var rounds int64
	require.NoError(t, db.Model(&models.QuizRound{}).Count(&rounds).Error)
	require.EqualValues(t, 1, rounds)

	_, err = svc.Get(ctx, old.SessionID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestNewHistoryServiceRequiresDB(t *testing.T) {
	_, err := NewHistoryService(nil)
	require.Error(t, err)
}
