package quiz

import "time"

// EventType names an outbound engine event.
type EventType string

const (
	EventSessionStarted EventType = "quiz.session.started"
	EventSongPresented  EventType = "quiz.round.presented"
	EventRoundResolved  EventType = "quiz.round.resolved"
	EventSessionEnded   EventType = "quiz.session.ended"
	EventSessionError   EventType = "quiz.session.error"
)

// Outcome describes how a round was resolved.
type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomeTimeout Outcome = "timeout"
	OutcomeSkipped Outcome = "skipped"
)

// EndReason describes why a session ended.
type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndStopped   EndReason = "stopped"
	EndFailed    EndReason = "failed"
)

// ErrorKind classifies a fatal session error.
type ErrorKind string

const (
	ErrorPoolExhausted ErrorKind = "pool_exhausted"
	ErrorDelivery      ErrorKind = "delivery_failed"
)

// Event is emitted by sessions for collaborators to render. Events are published after
// the session lock is released.
type Event interface {
	EventType() EventType
	Channel() string
}

// EventMeta is shared by every event.
type EventMeta struct {
	SessionID string    `json:"session_id"`
	ChannelID string    `json:"channel_id"`
	At        time.Time `json:"at"`
}

func (m EventMeta) Channel() string { return m.ChannelID }

// Standing is one leaderboard row.
type Standing struct {
	Participant string `json:"participant"`
	Points      int    `json:"points"`
}

// SessionStarted is published once the registry holds the new session.
type SessionStarted struct {
	EventMeta
	HostID   string `json:"host_id"`
	Config   Config `json:"config"`
	PoolSize int    `json:"pool_size"`
}

func (SessionStarted) EventType() EventType { return EventSessionStarted }

// CropWindow is the visible region of the cover art as fractions of its size.
type CropWindow struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SongPresented asks collaborators to show the round's media.
type SongPresented struct {
	EventMeta
	Round          int         `json:"round"`
	Rounds         int         `json:"rounds"`
	Mode           Mode        `json:"mode"`
	AnswerField    AnswerField `json:"answer_field"`
	Media          MediaRef    `json:"media"`
	Crop           *CropWindow `json:"crop,omitempty"`
	SnippetSeconds int         `json:"snippet_seconds,omitempty"`
	Deadline       time.Time   `json:"deadline"`
}

func (SongPresented) EventType() EventType { return EventSongPresented }

// RoundResolved reports the winner, or the lack of one, and the revealed answer.
type RoundResolved struct {
	EventMeta
	Round   int           `json:"round"`
	Rounds  int           `json:"rounds"`
	Outcome Outcome       `json:"outcome"`
	Winner  *string       `json:"winner"`
	Guess   string        `json:"guess,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Answer  string        `json:"answer"`
	Song    Song          `json:"song"`
	Scores  []Standing    `json:"scores"`
	Final   bool          `json:"final"`
}

func (RoundResolved) EventType() EventType { return EventRoundResolved }

// SessionEnded carries the final scores.
type SessionEnded struct {
	EventMeta
	HostID  string          `json:"host_id"`
	Reason  EndReason       `json:"reason"`
	Played  int             `json:"played"`
	Rounds  int             `json:"rounds"`
	Config  Config          `json:"config"`
	Started time.Time       `json:"started_at"`
	Scores  []Standing      `json:"scores"`
	// Results holds every resolved round in order, including one whose RoundResolved
	// is still being published.
	Results []RoundResolved `json:"-"`
}

func (SessionEnded) EventType() EventType { return EventSessionEnded }

// SessionError reports a failure that forced the session to end.
type SessionError struct {
	EventMeta
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (SessionError) EventType() EventType { return EventSessionError }

// Publisher delivers events to collaborators. Implementations must not call back into
// the session synchronously while holding their own locks.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) {
	if f != nil {
		f(e)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
