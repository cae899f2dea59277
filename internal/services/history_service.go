package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/samintell/songquiz/internal/models"
	"github.com/samintell/songquiz/internal/quiz"
	appErrors "github.com/samintell/songquiz/pkg/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryService persists finished quizzes and answers history queries.
type HistoryService struct {
	db *gorm.DB
}

// NewHistoryService constructs a history service once a database handle is supplied.
func NewHistoryService(db *gorm.DB) (*HistoryService, error) {
	if db == nil {
		return nil, errors.New("history service: db is required")
	}
	return &HistoryService{db: db}, nil
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// ChannelStanding is one row of the all-time leaderboard of a channel.
type ChannelStanding struct {
	Participant string `json:"participant"`
	Wins        int64  `json:"wins"`
	Sessions    int64  `json:"sessions"`
}

// Record stores the summary of an ended session together with its resolved rounds.
func (s *HistoryService) Record(ctx context.Context, ended quiz.SessionEnded, rounds []quiz.RoundResolved) (*models.QuizSession, error) {
	if s == nil {
		return nil, errors.New("history service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	cfg, err := json.Marshal(ended.Config)
	if err != nil {
		return nil, fmt.Errorf("history service: encode config: %w", err)
	}
	scores := ended.Scores
	if scores == nil {
		scores = []quiz.Standing{}
	}
	encodedScores, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("history service: encode scores: %w", err)
	}

	record := models.QuizSession{
		BaseModel:      models.BaseModel{ID: ended.SessionID},
		ChannelID:      ended.ChannelID,
		HostID:         ended.HostID,
		Mode:           string(ended.Config.Mode),
		AnswerField:    string(ended.Config.AnswerField),
		RoundsPlanned:  ended.Rounds,
		RoundsPlayed:   ended.Played,
		TimeoutSeconds: int(ended.Config.Timeout / time.Second),
		EndReason:      string(ended.Reason),
		Config:         datatypes.JSON(cfg),
		Scores:         datatypes.JSON(encodedScores),
		StartedAt:      ended.Started,
		EndedAt:        ended.At,
	}
	if len(scores) > 0 && scores[0].Points > 0 {
		record.TopScorer = scores[0].Participant
	}

	for _, r := range rounds {
		if r.SessionID != ended.SessionID {
			continue
		}
		var winner *string
		if r.Winner != nil {
			w := *r.Winner
			winner = &w
		}
		record.Rounds = append(record.Rounds, models.QuizRound{
			RoundIndex:    r.Round,
			SongID:        r.Song.ID,
			Answer:        r.Answer,
			Outcome:       string(r.Outcome),
			Winner:        winner,
			Guess:         r.Guess,
			ElapsedMillis: r.Elapsed.Milliseconds(),
			ResolvedAt:    r.At,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyRecorded.WithInternal(err)
		}
		return nil, fmt.Errorf("history service: record session %s: %w", ended.SessionID, err)
	}
	return &record, nil
}

// ListRecent returns the most recently ended sessions, newest first. An empty channel
// lists every channel.
func (s *HistoryService) ListRecent(ctx context.Context, channelID string, limit int) ([]models.QuizSession, error) {
	if s == nil {
		return nil, errors.New("history service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	q := s.db.WithContext(ctx).Model(&models.QuizSession{})
	if channelID = strings.TrimSpace(channelID); channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}

	var sessions []models.QuizSession
	if err := q.Order("ended_at DESC").Limit(clampLimit(limit)).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("history service: list sessions: %w", err)
	}
	return sessions, nil
}

// Get loads one session with its rounds in play order.
func (s *HistoryService) Get(ctx context.Context, id string) (*models.QuizSession, error) {
	if s == nil {
		return nil, errors.New("history service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	var session models.QuizSession
	err := s.db.WithContext(ctx).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("round_index ASC") }).
		First(&session, "id = ?", strings.TrimSpace(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrNotFound.WithMessage("quiz session %s not found", id)
		}
		return nil, fmt.Errorf("history service: get session: %w", err)
	}
	return &session, nil
}

// Leaderboard aggregates won rounds per participant across every stored session of the
// channel, most wins first.
func (s *HistoryService) Leaderboard(ctx context.Context, channelID string, limit int) ([]ChannelStanding, error) {
	if s == nil {
		return nil, errors.New("history service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, appErrors.NewBadRequest("channel id is required")
	}

	var standings []ChannelStanding
	err := s.db.WithContext(ctx).
		Table("quiz_rounds").
		Select("quiz_rounds.winner AS participant, COUNT(*) AS wins, COUNT(DISTINCT quiz_rounds.quiz_session_id) AS sessions").
		Joins("JOIN quiz_sessions ON quiz_sessions.id = quiz_rounds.quiz_session_id").
		Where("quiz_sessions.channel_id = ? AND quiz_rounds.outcome = ? AND quiz_rounds.winner IS NOT NULL", channelID, string(quiz.OutcomeWon)).
		Group("quiz_rounds.winner").
		Order("wins DESC, participant ASC").
		Limit(clampLimit(limit)).
		Scan(&standings).Error
	if err != nil {
		return nil, fmt.Errorf("history service: leaderboard: %w", err)
	}
	return standings, nil
}

// Prune deletes sessions, and their rounds, that ended before cutoff.
func (s *HistoryService) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil {
		return 0, errors.New("history service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.QuizSession{}).Select("id").Where("ended_at < ?", cutoff)
		if err := tx.Where("quiz_session_id IN (?)", expired).Delete(&models.QuizRound{}).Error; err != nil {
			return err
		}
		result := tx.Where("ended_at < ?", cutoff).Delete(&models.QuizSession{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("history service: prune: %w", err)
	}
	return removed, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}
