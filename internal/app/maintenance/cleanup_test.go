package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/samintell/songquiz/internal/database/testutil"
	"github.com/samintell/songquiz/internal/models"
	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/services"
)

type countingReloader struct {
	calls int
	err   error
}

func (r *countingReloader) Reload() error {
	r.calls++
	return r.err
}

func recordSession(t *testing.T, svc *services.HistoryService, id string, endedAt time.Time) {
	t.Helper()

	_, err := svc.Record(context.Background(), quiz.SessionEnded{
		EventMeta: quiz.EventMeta{SessionID: id, ChannelID: "general", At: endedAt},
		HostID:    "host",
		Reason:    quiz.EndStopped,
		Config:    quiz.Config{Mode: quiz.ModeImage, AnswerField: quiz.AnswerTitle, Rounds: 1, Timeout: 20 * time.Second},
		Started:   endedAt.Add(-time.Minute),
	}, nil)
	require.NoError(t, err)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	history, err := services.NewHistoryService(db)
	require.NoError(t, err)

	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	recordSession(t, history, "00000000-0000-0000-0000-000000000001", clock.Now().AddDate(0, 0, -10))
	recordSession(t, history, "00000000-0000-0000-0000-000000000002", clock.Now().AddDate(0, 0, -2))

	reloader := &countingReloader{}
	c := NewCleaner(
		WithNow(clock.Now),
		WithHistory(history, 7),
		WithCatalog(reloader),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))
	require.Equal(t, 1, reloader.calls)

	var remaining []models.QuizSession
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "00000000-0000-0000-0000-000000000002", remaining[0].ID)
}

func TestCleanerRunOnceCollectsErrors(t *testing.T) {
	reloader := &countingReloader{err: errors.New("catalog missing")}
	c := NewCleaner(WithCatalog(reloader))

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "reload catalog: catalog missing")
}

func TestCleanerZeroRetentionKeepsHistory(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	history, err := services.NewHistoryService(db)
	require.NoError(t, err)
	recordSession(t, history, "00000000-0000-0000-0000-000000000003", time.Now().AddDate(-1, 0, 0))

	c := NewCleaner(WithHistory(history, 0))
	removed, err := c.PruneHistory(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)

	var count int64
	require.NoError(t, db.Model(&models.QuizSession{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(WithCatalog(&countingReloader{}), WithCatalogSchedule("every so often"))
	require.Error(t, c.Start())
}

func TestCleanerStartAndStop(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	history, err := services.NewHistoryService(db)
	require.NoError(t, err)
	c := NewCleaner(WithCatalog(&countingReloader{}), WithHistory(history, 7), WithCron(scheduler))

	require.NoError(t, c.Start())
	require.Len(t, scheduler.Entries(), 2)
	<-c.Stop().Done()
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
