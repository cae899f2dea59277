package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/samintell/songquiz/internal/api"
	"github.com/samintell/songquiz/internal/app"
	"github.com/samintell/songquiz/internal/app/maintenance"
	"github.com/samintell/songquiz/internal/catalog"
	"github.com/samintell/songquiz/internal/database"
	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/realtime"
	"github.com/samintell/songquiz/internal/services"
	"github.com/samintell/songquiz/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Catalog *catalog.Store
	Hub     *realtime.Hub
	History *services.HistoryService
	Quiz    *services.QuizService
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime loads the catalog, opens quiz history and wires the quiz service to
// the realtime hub and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.History.Enabled {
		stack.DB, err = initialiseDatabase(cfg)
		if err != nil {
			return nil, err
		}
		stack.History, err = services.NewHistoryService(stack.DB)
		if err != nil {
			return nil, fmt.Errorf("initialise history service: %w", err)
		}
	}

	media := catalog.NewMediaResolver(cfg.Catalog.ImagesDir, cfg.Catalog.AudioDir)
	stack.Catalog = catalog.NewStore(cfg.Catalog.Path, media)
	if err := stack.Catalog.Reload(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	stack.Hub = realtime.NewHub()

	registryOpts := []quiz.RegistryOption{
		quiz.WithMatcher(quiz.NewMatcher(cfg.Quiz.MatchThreshold)),
		quiz.WithLimits(cfg.Quiz.Limits()),
	}
	opts := []services.QuizServiceOption{services.WithBroadcaster(stack.Hub)}
	if cfg.Catalog.CheckMedia {
		registryOpts = append(registryOpts, quiz.WithAvailability(media.Exists))
		opts = append(opts, services.WithMediaChecker(media))
	}
	if stack.History != nil {
		opts = append(opts, services.WithHistory(stack.History))
	}
	opts = append(opts, services.WithRegistryOptions(registryOpts...))

	stack.Quiz, err = services.NewQuizService(stack.Catalog, cfg.Quiz.ServiceConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise quiz service: %w", err)
	}
	stack.Hub.SetCommandHandler(stack.Quiz.HandleCommand)

	cleanerOpts := []maintenance.Option{
		maintenance.WithCatalog(stack.Catalog),
		maintenance.WithCatalogSchedule(cfg.Catalog.ReloadSchedule),
	}
	if stack.History != nil {
		cleanerOpts = append(cleanerOpts,
			maintenance.WithHistory(stack.History, cfg.History.RetentionDays),
			maintenance.WithHistorySchedule(cfg.History.Schedule),
		)
	}

	stack.Cleaner = maintenance.NewCleaner(cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:  cfg,
		DB:      stack.DB,
		Catalog: stack.Catalog,
		Quiz:    stack.Quiz,
		History: stack.History,
		Hub:     stack.Hub,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown ends live quizzes, stops background jobs and releases the database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Quiz != nil {
		if stopped := s.Quiz.Shutdown(); stopped > 0 {
			log.Info("stopped live quizzes", zap.Int("count", stopped))
		}
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("maintenance jobs: %w", ctx.Err()))
		}
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Settings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
