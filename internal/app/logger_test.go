package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/samintell/songquiz/pkg/logger"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() { logger.Set(nil) })

	require.NoError(t, ConfigureLogging("debug", "console"))
	require.True(t, logger.Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, ConfigureLogging("", ""))
	require.False(t, logger.Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, logger.Logger().Core().Enabled(zap.InfoLevel))
}
