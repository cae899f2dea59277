package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samintell/songquiz/internal/app"
	"github.com/samintell/songquiz/internal/handlers"
)

func registerQuizRoutes(api *gin.RouterGroup, deps Dependencies) {
	handler := handlers.NewQuizHandler(deps.Quiz, deps.Catalog, deps.History)

	channel := api.Group("/channels/:channel")
	{
		channel.POST("/quiz", handler.Start)
		channel.GET("/quiz", handler.Snapshot)
		channel.POST("/quiz/guesses", handler.Guess)
		channel.POST("/quiz/skip", handler.Skip)
		channel.POST("/quiz/stop", handler.Stop)
		channel.POST("/quiz/replay", handler.Replay)
		channel.GET("/quiz/leaderboard", handler.Leaderboard)
		channel.GET("/leaderboard", handler.AllTimeLeaderboard)
	}

	quiz := api.Group("/quiz")
	{
		quiz.GET("/filters", handler.Filters)
		quiz.GET("/history", handler.History)
		quiz.GET("/history/:id", handler.HistoryEntry)
	}
}

func registerMediaRoutes(r *gin.Engine, cfg *app.Config) {
	if dir := strings.TrimSpace(cfg.Catalog.ImagesDir); dir != "" {
		r.Static("/media/images", dir)
	}
	if dir := strings.TrimSpace(cfg.Catalog.AudioDir); dir != "" {
		r.Static("/media/audio", dir)
	}
}
