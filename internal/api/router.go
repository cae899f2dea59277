package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/samintell/songquiz/internal/app"
	"github.com/samintell/songquiz/internal/catalog"
	"github.com/samintell/songquiz/internal/middleware"
	"github.com/samintell/songquiz/internal/realtime"
	"github.com/samintell/songquiz/internal/services"
)

// Dependencies carries everything the router mounts. DB and History are nil when quiz
// history is disabled.
type Dependencies struct {
	Config  *app.Config
	DB      *gorm.DB
	Catalog *catalog.Store
	Quiz    *services.QuizService
	History *services.HistoryService
	Hub     *realtime.Hub
}

// NewRouter builds the Gin engine, wires middleware and registers the quiz routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog store must be provided")
	}
	if deps.Quiz == nil {
		return nil, errors.New("quiz service must be provided")
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, deps)
	registerMonitoringRoutes(r, deps.Config)

	api := r.Group("/api")
	registerQuizRoutes(api, deps)
	registerMediaRoutes(r, deps.Config)
	registerRealtimeRoutes(r, deps.Hub)

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}
