package quiz

import (
	"math"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/cases"
)

// DefaultThreshold is the minimum similarity a guess needs against one of the round's
// targets to be accepted. Lower values admit more typos and more false positives.
const DefaultThreshold = 0.8

const (
	// partialMinRunes and partialMinCoverage gate window matching so that very short
	// guesses cannot win by matching a fragment of a long title.
	partialMinRunes    = 3
	partialMinCoverage = 0.4

	levelTolerance = 0.01
)

// stripped is replaced by a space before whitespace is collapsed.
const stripped = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

// MatchResult is the verdict for one guess.
type MatchResult struct {
	Accepted       bool    `json:"accepted"`
	Score          float64 `json:"score"`
	MatchedAgainst string  `json:"matched_against,omitempty"`
}

// Matcher compares free-text guesses with a song's answer representations. It holds no
// mutable state and is safe for concurrent use.
type Matcher struct {
	threshold float64
	metric    *metrics.Levenshtein
}

// NewMatcher returns a matcher accepting scores at or above threshold. Values outside
// (0, 1] fall back to DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 || math.IsNaN(threshold) {
		threshold = DefaultThreshold
	}
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = true
	return &Matcher{threshold: threshold, metric: lev}
}

// Threshold reports the acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match scores guess against every target and accepts when the best score reaches the
// threshold. Empty guesses are rejected with a zero score.
func (m *Matcher) Match(guess string, targets ...string) MatchResult {
	g := Normalize(guess)
	if g == "" {
		return MatchResult{}
	}

	var best MatchResult
	for _, target := range targets {
		t := Normalize(target)
		if t == "" {
			continue
		}
		score := m.Similarity(g, t)
		if score > best.Score || best.MatchedAgainst == "" {
			best = MatchResult{Score: score, MatchedAgainst: target}
		}
		if score >= 1 {
			break
		}
	}
	best.Accepted = best.MatchedAgainst != "" && best.Score >= m.threshold
	return best
}

// Check matches guess against the representations of song selected by field.
func (m *Matcher) Check(guess string, song Song, field AnswerField) MatchResult {
	if field == AnswerDifficulty {
		return matchLevel(guess, song.Level)
	}
	return m.Match(guess, song.Targets(field)...)
}

// Similarity returns a symmetric score in [0,1] for two already normalised strings:
// the larger of the whole-string Levenshtein ratio and the best ratio of the shorter
// string against equally long windows of the longer one.
func (m *Matcher) Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	score := strutil.Similarity(a, b, m.metric)

	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < partialMinRunes || float64(len(short)) < partialMinCoverage*float64(len(long)) {
		return score
	}

	needle := string(short)
	for i := 0; i+len(short) <= len(long) && score < 1; i++ {
		window := strutil.Similarity(needle, string(long[i:i+len(short)]), m.metric)
		if window > score {
			score = window
		}
	}
	return score
}

// Normalize folds case, replaces the stripped punctuation with spaces and collapses
// whitespace. Other characters, including CJK text, are kept as they are.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	folded := cases.Fold().String(s)
	replaced := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripped, r) {
			return ' '
		}
		return r
	}, folded)
	return strings.Join(strings.Fields(replaced), " ")
}

// ParseLevel reads a chart level guess such as "13.7", "13,7" or "13+".
func ParseLevel(guess string) (float64, bool) {
	clean := strings.TrimSpace(guess)
	clean = strings.ReplaceAll(clean, ",", ".")
	clean = strings.ReplaceAll(clean, "+", "")
	if clean == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func matchLevel(guess string, level float64) MatchResult {
	v, ok := ParseLevel(guess)
	if !ok {
		return MatchResult{}
	}
	target := strconv.FormatFloat(level, 'f', -1, 64)
	if math.Abs(v-level) < levelTolerance {
		return MatchResult{Accepted: true, Score: 1, MatchedAgainst: target}
	}
	return MatchResult{Score: 0, MatchedAgainst: target}
}
