package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samintell/songquiz/internal/catalog"
	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/services"
	appErrors "github.com/samintell/songquiz/pkg/errors"
	"github.com/samintell/songquiz/pkg/response"
)

// QuizHandler exposes quiz commands and queries for a chat channel.
type QuizHandler struct {
	quiz    *services.QuizService
	catalog *catalog.Store
	history *services.HistoryService
	timeNow func() time.Time
}

// NewQuizHandler constructs a quiz handler. history may be nil when persistence is off.
func NewQuizHandler(quizSvc *services.QuizService, store *catalog.Store, history *services.HistoryService) *QuizHandler {
	return &QuizHandler{
		quiz:    quizSvc,
		catalog: store,
		history: history,
		timeNow: time.Now,
	}
}

type startQuizRequest struct {
	HostID         string   `json:"host_id" validate:"required,max=191"`
	Mode           string   `json:"mode" validate:"omitempty,quiz_mode"`
	AnswerField    string   `json:"answer_field" validate:"omitempty,answer_field"`
	Rounds         int      `json:"rounds" validate:"omitempty,min=1"`
	TimeoutSeconds int      `json:"timeout_seconds" validate:"omitempty,min=1"`
	Tier           string   `json:"tier" validate:"omitempty,oneof=master remaster"`
	Categories     []string `json:"categories" validate:"omitempty,dive,max=64"`
	Versions       []string `json:"versions" validate:"omitempty,dive,max=64"`
	ImageCrop      string   `json:"image_crop" validate:"omitempty,image_crop"`
	SnippetSeconds int      `json:"snippet_seconds" validate:"omitempty,min=1"`
}

type guessRequest struct {
	Participant string `json:"participant" validate:"required,max=191"`
	Text        string `json:"text" validate:"max=512"`
}

type participantRequest struct {
	Participant string `json:"participant" validate:"required,max=191"`
}

type replayRequest struct {
	HostID string `json:"host_id" validate:"required,max=191"`
}

// POST /api/channels/:channel/quiz
func (h *QuizHandler) Start(c *gin.Context) {
	var req startQuizRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.quiz.Start(requestContext(c), services.StartQuizInput{
		ChannelID:      channelParam(c),
		HostID:         req.HostID,
		Mode:           req.Mode,
		AnswerField:    req.AnswerField,
		Rounds:         req.Rounds,
		Timeout:        time.Duration(req.TimeoutSeconds) * time.Second,
		Tier:           req.Tier,
		Categories:     req.Categories,
		Versions:       req.Versions,
		ImageCrop:      req.ImageCrop,
		SnippetSeconds: req.SnippetSeconds,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session.Snapshot())
}

// GET /api/channels/:channel/quiz
func (h *QuizHandler) Snapshot(c *gin.Context) {
	snap, err := h.quiz.Snapshot(channelParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// POST /api/channels/:channel/quiz/guesses
func (h *QuizHandler) Guess(c *gin.Context) {
	receivedAt := h.timeNow()

	var req guessRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.quiz.Guess(channelParam(c), req.Participant, req.Text, receivedAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// POST /api/channels/:channel/quiz/skip
func (h *QuizHandler) Skip(c *gin.Context) {
	var req participantRequest
	if !bindAndValidate(c, &req) {
		return
	}

	channel := channelParam(c)
	if err := h.quiz.Skip(channel, req.Participant); err != nil {
		response.Error(c, err)
		return
	}

	snap, err := h.quiz.Snapshot(channel)
	if err != nil {
		// the skipped round was the last one and the session already ended
		response.Success(c, http.StatusOK, gin.H{"skipped": true})
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// POST /api/channels/:channel/quiz/stop
func (h *QuizHandler) Stop(c *gin.Context) {
	var req participantRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ended, err := h.quiz.Stop(channelParam(c), req.Participant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, ended)
}

// POST /api/channels/:channel/quiz/replay
func (h *QuizHandler) Replay(c *gin.Context) {
	var req replayRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.quiz.Replay(requestContext(c), channelParam(c), req.HostID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, session.Snapshot())
}

// GET /api/channels/:channel/quiz/leaderboard
func (h *QuizHandler) Leaderboard(c *gin.Context) {
	standings, err := h.quiz.Leaderboard(channelParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if standings == nil {
		standings = []quiz.Standing{}
	}
	response.Success(c, http.StatusOK, standings)
}

// GET /api/channels/:channel/leaderboard
func (h *QuizHandler) AllTimeLeaderboard(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	limit := parseIntQuery(c, "limit", 10)
	standings, err := h.history.Leaderboard(requestContext(c), channelParam(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if standings == nil {
		standings = []services.ChannelStanding{}
	}
	response.Success(c, http.StatusOK, standings)
}

// GET /api/quiz/filters
func (h *QuizHandler) Filters(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"filters": h.catalog.Filters(),
		"catalog": h.catalog.Stats(),
	})
}

// GET /api/quiz/history
func (h *QuizHandler) History(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	limit := parseIntQuery(c, "limit", 20)
	sessions, err := h.history.ListRecent(requestContext(c), c.Query("channel"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, sessions, &response.Meta{Total: len(sessions), Limit: limit})
}

// GET /api/quiz/history/:id
func (h *QuizHandler) HistoryEntry(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	session, err := h.history.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}
