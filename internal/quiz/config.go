package quiz

import (
	"strings"
	"time"

	appErrors "github.com/samintell/songquiz/pkg/errors"
)

// Mode selects which media is presented for each round.
type Mode string

const (
	ModeImage Mode = "image"
	ModeAudio Mode = "audio"
)

// AnswerField selects the song attribute guesses are checked against.
type AnswerField string

const (
	AnswerTitle      AnswerField = "title"
	AnswerArtist     AnswerField = "artist"
	AnswerDifficulty AnswerField = "difficulty"
)

// ImageCrop controls how much of the cover art is revealed in image mode.
type ImageCrop string

const (
	CropEasy   ImageCrop = "easy"
	CropMedium ImageCrop = "medium"
	CropHard   ImageCrop = "hard"
)

// Config is the immutable configuration of one session.
type Config struct {
	Mode           Mode          `json:"mode"`
	AnswerField    AnswerField   `json:"answer_field"`
	Rounds         int           `json:"rounds"`
	Timeout        time.Duration `json:"timeout"`
	Tier           string        `json:"tier,omitempty"`
	Categories     []string      `json:"categories,omitempty"`
	Versions       []string      `json:"versions,omitempty"`
	ImageCrop      ImageCrop     `json:"image_crop,omitempty"`
	SnippetSeconds int           `json:"snippet_seconds,omitempty"`
}

// Limits bounds what a Config may request.
type Limits struct {
	DefaultRounds  int
	MaxRounds      int
	DefaultTimeout time.Duration
	MinTimeout     time.Duration
	MaxTimeout     time.Duration
	DefaultSnippet int
	MinSnippet     int
	MaxSnippet     int
}

// DefaultLimits mirrors the bounds exposed to players.
func DefaultLimits() Limits {
	return Limits{
		DefaultRounds:  10,
		MaxRounds:      50,
		DefaultTimeout: 20 * time.Second,
		MinTimeout:     10 * time.Second,
		MaxTimeout:     300 * time.Second,
		DefaultSnippet: 10,
		MinSnippet:     5,
		MaxSnippet:     30,
	}
}

// WithDefaults fills unset fields from limits. Explicitly invalid values are kept so that
// Validate can reject them.
func (c Config) WithDefaults(limits Limits) Config {
	if c.Mode == "" {
		c.Mode = ModeImage
	}
	if c.AnswerField == "" {
		c.AnswerField = AnswerTitle
	}
	if c.Rounds == 0 {
		c.Rounds = limits.DefaultRounds
	}
	if c.Timeout == 0 {
		c.Timeout = limits.DefaultTimeout
	}
	if c.Tier == "" {
		c.Tier = TierMaster
	}
	if c.Mode == ModeImage && c.ImageCrop == "" {
		c.ImageCrop = CropEasy
	}
	if c.Mode == ModeAudio && c.SnippetSeconds == 0 {
		c.SnippetSeconds = limits.DefaultSnippet
	}
	c.Mode = Mode(strings.ToLower(string(c.Mode)))
	c.AnswerField = AnswerField(strings.ToLower(string(c.AnswerField)))
	c.ImageCrop = ImageCrop(strings.ToLower(string(c.ImageCrop)))
	return c
}

// Validate reports out-of-range or unknown settings as ErrInvalidConfig.
func (c Config) Validate(limits Limits) error {
	switch c.Mode {
	case ModeImage, ModeAudio:
	default:
		return appErrors.ErrInvalidConfig.WithMessage("unknown mode %q", c.Mode)
	}
	switch c.AnswerField {
	case AnswerTitle, AnswerArtist, AnswerDifficulty:
	default:
		return appErrors.ErrInvalidConfig.WithMessage("unknown answer field %q", c.AnswerField)
	}
	if c.Rounds < 1 || (limits.MaxRounds > 0 && c.Rounds > limits.MaxRounds) {
		return appErrors.ErrInvalidConfig.WithMessage("rounds must be between 1 and %d", limits.MaxRounds)
	}
	if c.Timeout < limits.MinTimeout || (limits.MaxTimeout > 0 && c.Timeout > limits.MaxTimeout) || c.Timeout <= 0 {
		return appErrors.ErrInvalidConfig.WithMessage("timeout must be between %s and %s", limits.MinTimeout, limits.MaxTimeout)
	}
	switch c.ImageCrop {
	case "", CropEasy, CropMedium, CropHard:
	default:
		return appErrors.ErrInvalidConfig.WithMessage("unknown image crop %q", c.ImageCrop)
	}
	if c.Mode == ModeAudio && (c.SnippetSeconds < limits.MinSnippet || (limits.MaxSnippet > 0 && c.SnippetSeconds > limits.MaxSnippet)) {
		return appErrors.ErrInvalidConfig.WithMessage("snippet must be between %d and %d seconds", limits.MinSnippet, limits.MaxSnippet)
	}
	return nil
}
