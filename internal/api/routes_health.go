package api

import (
	"github.com/gin-gonic/gin"

	"github.com/samintell/songquiz/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, deps Dependencies) {
	health := handlers.Health(deps.DB, deps.Catalog, deps.Quiz)
	r.GET("/health", health)
	r.GET("/api/health", health)
}
