package main

import (
	"github.com/huddlehq/huddle/backend/internal/config"
	"github.com/huddlehq/huddle/backend/internal/handlers"
	"github.com/huddlehq/huddle/backend/internal/models"
	"github.com/huddlehq/huddle/backend/internal/services"
	"github.com/huddlehq/huddle/backend/internal/utils"
	"github.com/huddlehq/huddle/backend/pkg/logger"
)

// appServices holds the initialized services and handlers the router needs.
type appServices struct {
	revocations    services.RevocationStore
	hub            *services.Hub
	authHandler    *handlers.AuthHandler
	userHandler    *handlers.UserHandler
	projectHandler *handlers.ProjectHandler
	wsHandler      *handlers.WSHandler
}

// bootstrap initializes all application dependencies: database, revocation
// store, room hub, handlers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	services.InitSystemLogger(models.GetDB())
	services.StartLogCleanupScheduler(models.GetDB(), cfg.Log.RetentionDays)

	revocations := services.NewRevocationStore(&cfg.Redis)

	aiService := services.NewAIService(&cfg.AI)
	hub := services.NewHub(aiService)

	return &appServices{
		revocations:    revocations,
		hub:            hub,
		authHandler:    handlers.NewAuthHandler(models.GetDB(), cfg, revocations),
		userHandler:    handlers.NewUserHandler(models.GetDB(), cfg, revocations),
		projectHandler: handlers.NewProjectHandler(models.GetDB()),
		wsHandler:      handlers.NewWSHandler(models.GetDB(), hub, revocations),
	}
}

// shutdown releases service resources.
func (s *appServices) shutdown() {
	services.StopLogCleanupScheduler()
	if err := s.revocations.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close revocation store")
	}
	logger.Info().Msg("services stopped")
}
