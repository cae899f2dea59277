package app

import (
	"strings"

	"github.com/samintell/songquiz/pkg/logger"
)

// ConfigureLogging initialises the global logger. An empty level means info and an empty
// encoding means json.
func ConfigureLogging(level, encoding string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "" {
		encoding = "json"
	}
	return logger.Init(level, encoding)
}
