package quiz

import (
	"strconv"
	"strings"
)

// Chart tiers. The master tier is the one sessions are built from; remaster charts
// share the song id and count as master.
const (
	TierMaster   = "master"
	TierRemaster = "remaster"
)

// MediaRef points at the cover art and audio clip used to present a song. The engine
// never opens these files.
type MediaRef struct {
	Image string `json:"image,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// Song is one chart entry from the catalog. Several entries may share an ID, one per
// difficulty tier.
type Song struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Romanized string   `json:"romanized,omitempty"`
	English   string   `json:"english,omitempty"`
	Artist    string   `json:"artist"`
	Category  string   `json:"category"`
	Version   string   `json:"version"`
	Tier      string   `json:"tier"`
	Chart     string   `json:"chart,omitempty"`
	Level     float64  `json:"level"`
	Media     MediaRef `json:"media"`
}

// Answer renders the revealed answer for a round in the given answer field.
func (s Song) Answer(field AnswerField) string {
	switch field {
	case AnswerArtist:
		if s.Artist == "" {
			return "Unknown"
		}
		return s.Artist
	case AnswerDifficulty:
		tier := s.Tier
		if tier == "" {
			tier = TierMaster
		}
		return strconv.FormatFloat(s.Level, 'f', -1, 64) + " (" + tier + ")"
	}

	parts := []string{s.Title}
	if s.Romanized != "" && s.Romanized != s.Title {
		parts = append(parts, s.Romanized)
	}
	if s.English != "" && s.English != s.Title && s.English != s.Romanized {
		parts = append(parts, "("+s.English+")")
	}
	return strings.Join(parts, " / ")
}

// Targets lists the strings a guess is compared against for the answer field.
func (s Song) Targets(field AnswerField) []string {
	switch field {
	case AnswerArtist:
		return nonEmpty(s.Artist)
	case AnswerDifficulty:
		return []string{strconv.FormatFloat(s.Level, 'f', -1, 64)}
	default:
		return nonEmpty(s.Title, s.Romanized, s.English)
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
