package api

import (
	"github.com/gin-gonic/gin"

	"github.com/samintell/songquiz/internal/handlers"
	"github.com/samintell/songquiz/internal/realtime"
)

func registerRealtimeRoutes(r *gin.Engine, hub *realtime.Hub) {
	if hub == nil {
		return
	}

	handler := handlers.NewRealtimeHandler(hub)
	r.GET("/ws/channels/:channel", handler.Stream)
}
