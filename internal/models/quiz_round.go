package models

import "time"

// QuizRound records how one round of a persisted quiz was resolved.
type QuizRound struct {
	BaseModel

	QuizSessionID string    `gorm:"type:uuid;index;not null" json:"quiz_session_id"`
	RoundIndex    int       `gorm:"not null" json:"round"`
	SongID        string    `gorm:"size:255" json:"song_id"`
	Answer        string    `gorm:"size:1024" json:"answer"`
	Outcome       string    `gorm:"size:16" json:"outcome"`
	Winner        *string   `gorm:"size:191" json:"winner,omitempty"`
	Guess         string    `gorm:"size:512" json:"guess,omitempty"`
	ElapsedMillis int64     `json:"elapsed_ms"`
	ResolvedAt    time.Time `json:"resolved_at"`
}
