package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuizSession is the persisted summary of a finished quiz. The id matches the id the
// session had while it was live.
type QuizSession struct {
	BaseModel

	ChannelID      string         `gorm:"size:191;index:idx_quiz_sessions_channel_ended,priority:1;not null" json:"channel_id"`
	HostID         string         `gorm:"size:191" json:"host_id"`
	Mode           string         `gorm:"size:16" json:"mode"`
	AnswerField    string         `gorm:"size:16" json:"answer_field"`
	RoundsPlanned  int            `json:"rounds_planned"`
	RoundsPlayed   int            `json:"rounds_played"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	EndReason      string         `gorm:"size:16;index" json:"end_reason"`
	TopScorer      string         `gorm:"size:191" json:"top_scorer,omitempty"`
	Config         datatypes.JSON `json:"config"`
	Scores         datatypes.JSON `json:"scores"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        time.Time      `gorm:"index:idx_quiz_sessions_channel_ended,priority:2" json:"ended_at"`

	Rounds []QuizRound `gorm:"foreignKey:QuizSessionID;constraint:OnDelete:CASCADE" json:"rounds,omitempty"`
}
