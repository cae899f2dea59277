package app

import (
	"fmt"
	"strings"

	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/services"
)

// ApplyRuntimeDefaults repairs settings that would leave the server unable to run a quiz,
// such as inverted bounds or an out-of-range threshold. It returns the keys it changed so
// callers can log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	adjusted := make(map[string]bool)
	limits := quiz.DefaultLimits()
	q := &cfg.Quiz

	if q.MatchThreshold <= 0 || q.MatchThreshold > 1 {
		q.MatchThreshold = quiz.DefaultThreshold
		adjusted["quiz.match_threshold"] = true
	}

	if q.MaxRounds <= 0 {
		q.MaxRounds = limits.MaxRounds
		adjusted["quiz.max_rounds"] = true
	}
	if q.DefaultRounds <= 0 || q.DefaultRounds > q.MaxRounds {
		q.DefaultRounds = min(limits.DefaultRounds, q.MaxRounds)
		adjusted["quiz.default_rounds"] = true
	}

	if q.MinTimeout <= 0 {
		q.MinTimeout = limits.MinTimeout
		adjusted["quiz.min_timeout"] = true
	}
	if q.MaxTimeout < q.MinTimeout {
		q.MaxTimeout = max(limits.MaxTimeout, q.MinTimeout)
		adjusted["quiz.max_timeout"] = true
	}
	if q.DefaultTimeout < q.MinTimeout || q.DefaultTimeout > q.MaxTimeout {
		q.DefaultTimeout = min(max(limits.DefaultTimeout, q.MinTimeout), q.MaxTimeout)
		adjusted["quiz.default_timeout"] = true
	}

	if q.MinSnippet <= 0 {
		q.MinSnippet = limits.MinSnippet
		adjusted["quiz.min_snippet"] = true
	}
	if q.MaxSnippet < q.MinSnippet {
		q.MaxSnippet = max(limits.MaxSnippet, q.MinSnippet)
		adjusted["quiz.max_snippet"] = true
	}
	if q.DefaultSnippet < q.MinSnippet || q.DefaultSnippet > q.MaxSnippet {
		q.DefaultSnippet = min(max(limits.DefaultSnippet, q.MinSnippet), q.MaxSnippet)
		adjusted["quiz.default_snippet"] = true
	}

	switch strings.ToLower(strings.TrimSpace(q.SkipPolicy)) {
	case services.SkipPolicyHost, services.SkipPolicyAnyone:
		q.SkipPolicy = strings.ToLower(strings.TrimSpace(q.SkipPolicy))
	default:
		q.SkipPolicy = services.SkipPolicyHost
		adjusted["quiz.skip_policy"] = true
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 8080
		adjusted["server.port"] = true
	}
	if cfg.History.RetentionDays < 0 {
		cfg.History.RetentionDays = 0
		adjusted["history.retention_days"] = true
	}

	return adjusted, nil
}
