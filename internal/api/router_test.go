package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/samintell/songquiz/internal/app"
	"github.com/samintell/songquiz/internal/catalog"
	"github.com/samintell/songquiz/internal/database/testutil"
	"github.com/samintell/songquiz/internal/quiz/quiztest"
	"github.com/samintell/songquiz/internal/realtime"
	"github.com/samintell/songquiz/internal/services"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Server:  app.ServerConfig{Port: 8080},
		Catalog: app.CatalogConfig{ImagesDir: t.TempDir(), AudioDir: t.TempDir()},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
}

func newTestRouter(t *testing.T, cfg *app.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	history, err := services.NewHistoryService(db)
	require.NoError(t, err)

	store := catalog.NewStaticStore(quiztest.Catalog(12), nil)
	svc, err := services.NewQuizService(store, services.QuizServiceConfig{},
		services.WithHistory(history),
		services.WithScheduler(func(time.Duration, func()) {}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Shutdown() })

	router, err := NewRouter(Dependencies{
		Config:  cfg,
		DB:      db,
		Catalog: store,
		Quiz:    svc,
		History: history,
		Hub:     realtime.NewHub(),
	})
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	require.Error(t, err)

	_, err = NewRouter(Dependencies{Config: &app.Config{}})
	require.Error(t, err)
}

func TestRouter_QuizLifecycle(t *testing.T) {
	router := newTestRouter(t, testConfig(t))

	rec, env := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, env.Success)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/channels/general/quiz", map[string]any{
		"host_id": "alice",
		"rounds":  3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = doJSON(t, router, http.MethodPost, "/api/channels/general/quiz", map[string]any{"host_id": "bob"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, "quiz.session_active", env.Error.Code)

	rec, env = doJSON(t, router, http.MethodGet, "/api/channels/general/quiz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		HostID string `json:"host_id"`
		Rounds int    `json:"rounds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Equal(t, "alice", snap.HostID)
	require.Equal(t, 3, snap.Rounds)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/channels/general/quiz/guesses", map[string]any{
		"participant": "bob",
		"text":        "Song 01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = doJSON(t, router, http.MethodPost, "/api/channels/general/quiz/stop", map[string]any{"participant": "bob"})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec, _ = doJSON(t, router, http.MethodPost, "/api/channels/general/quiz/stop", map[string]any{"participant": "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = doJSON(t, router, http.MethodGet, "/api/channels/general/quiz", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "quiz.no_session", env.Error.Code)

	rec, env = doJSON(t, router, http.MethodGet, "/api/quiz/history?channel=general", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []struct {
		ID     string `json:"id"`
		HostID string `json:"host_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, "alice", sessions[0].HostID)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/quiz/history/"+sessions[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/channels/general/quiz/replay", map[string]any{"host_id": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRouter_ValidationErrors(t *testing.T) {
	router := newTestRouter(t, testConfig(t))

	rec, env := doJSON(t, router, http.MethodPost, "/api/channels/general/quiz", map[string]any{
		"host_id": "alice",
		"mode":    "video",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.False(t, env.Success)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/channels/general/quiz", map[string]any{
		"host_id":    "alice",
		"categories": []string{"not-a-category"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestRouter_FiltersAndLeaderboards(t *testing.T) {
	router := newTestRouter(t, testConfig(t))

	rec, env := doJSON(t, router, http.MethodGet, "/api/quiz/filters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "filters")

	rec, _ = doJSON(t, router, http.MethodGet, "/api/channels/general/quiz/leaderboard", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = doJSON(t, router, http.MethodGet, "/api/channels/general/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, string(env.Data))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, testConfig(t))

	rec, _ := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `songquiz_api_latency_seconds_count{method="GET",path="/health",status="200"}`)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitoring.Prometheus.Enabled = false
	router := newTestRouter(t, cfg)

	rec, _ := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ServesMedia(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Catalog.ImagesDir, "song-01.png"), []byte("png"), 0o600))
	router := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/images/song-01.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "png", rec.Body.String())
}

func TestRouter_FallbackHandlers(t *testing.T) {
	router := newTestRouter(t, testConfig(t))

	rec, env := doJSON(t, router, http.MethodGet, "/api/unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, env.Success)

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/quiz/filters", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/ws/channels/general", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
