package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samintell/songquiz/internal/services"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	db := cfg.Database.Settings()
	require.Equal(t, "postgres", db.Driver)
	require.Equal(t, "db.example.com", db.Host)
	require.Equal(t, 5433, db.Port)
	require.Equal(t, "songquiz", db.Name)
	require.Equal(t, "quiz", db.User)
	require.Equal(t, "require", db.Options["sslmode"])

	require.Equal(t, "/srv/songquiz/output.json", cfg.Catalog.Path)
	require.Equal(t, "@every 30m", cfg.Catalog.ReloadSchedule)
	require.True(t, cfg.Catalog.CheckMedia)

	require.Equal(t, 0.85, cfg.Quiz.MatchThreshold)
	limits := cfg.Quiz.Limits()
	require.Equal(t, 25, limits.MaxRounds)
	require.Equal(t, 10, limits.DefaultRounds)
	require.Equal(t, 30*time.Second, limits.DefaultTimeout)
	require.Equal(t, 300*time.Second, limits.MaxTimeout)

	svc := cfg.Quiz.ServiceConfig()
	require.Equal(t, 5*time.Second, svc.LeadIn)
	require.Equal(t, 3*time.Second, svc.Intermission)
	require.Equal(t, services.SkipPolicyAnyone, svc.SkipPolicy)

	require.True(t, cfg.History.Enabled)
	require.Equal(t, 14, cfg.History.RetentionDays)
	require.Equal(t, "@daily", cfg.History.Schedule)
	require.False(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigDefaultsAndEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SONGQUIZ_SERVER_PORT", "7070")
	t.Setenv("SONGQUIZ_QUIZ_INTERMISSION", "1500ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 1500*time.Millisecond, cfg.Quiz.Intermission)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/songquiz.sqlite", cfg.Database.Settings().Path)
	require.Equal(t, "./output.json", cfg.Catalog.Path)
	require.Equal(t, 20*time.Second, cfg.Quiz.DefaultTimeout)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.Equal(t, services.SkipPolicyHost, cfg.Quiz.SkipPolicy)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SONGQUIZ_CATALOG_PATH=/data/charts.json\n"), 0o600))
	// godotenv never overrides a set variable; Setenv only registers the restore.
	t.Setenv("SONGQUIZ_CATALOG_PATH", "")
	require.NoError(t, os.Unsetenv("SONGQUIZ_CATALOG_PATH"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/data/charts.json", cfg.Catalog.Path)
}
