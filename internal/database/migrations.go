package database

import (
	"gorm.io/gorm"

	"github.com/samintell/songquiz/internal/models"
)

// AutoMigrate creates or updates the quiz history schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.QuizSession{},
		&models.QuizRound{},
	)
}
