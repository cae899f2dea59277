package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/samintell/songquiz/internal/catalog"
	"github.com/samintell/songquiz/internal/database"
	"github.com/samintell/songquiz/internal/services"
	appErrors "github.com/samintell/songquiz/pkg/errors"
	"github.com/samintell/songquiz/pkg/response"
)

// Health reports readiness: the history database answers and a catalog is loaded.
// db may be nil when history is disabled.
func Health(db *gorm.DB, store *catalog.Store, quizSvc *services.QuizService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := database.Ping(db); err != nil {
				response.Error(c, appErrors.New("SERVICE_UNAVAILABLE", "database unavailable", http.StatusServiceUnavailable).WithInternal(err))
				return
			}
		}

		payload := gin.H{"status": "ok"}
		if store != nil {
			payload["catalog"] = store.Stats()
		}
		if quizSvc != nil {
			payload["active_quizzes"] = len(quizSvc.Active())
		}
		response.Success(c, http.StatusOK, payload)
	}
}
