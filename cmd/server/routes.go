package main

import (
	"github.com/gin-gonic/gin"

	"github.com/huddlehq/huddle/backend/internal/handlers"
	"github.com/huddlehq/huddle/backend/internal/middleware"
)

// setupRoutes wires the REST surface and the real-time endpoint.
func setupRoutes(r *gin.Engine, svcs *appServices) {
	r.GET("/health", handlers.Health)

	// Real-time endpoint runs its own handshake
	r.GET("/ws", svcs.wsHandler.Connect)

	api := r.Group("/api")
	{
		// Public auth routes, rate-limited per IP
		authLimiter := middleware.NewRateLimiter(5, 10)
		auth := api.Group("/auth")
		auth.Use(authLimiter.Middleware())
		{
			auth.POST("/register", svcs.authHandler.Register)
			auth.POST("/login", svcs.authHandler.Login)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svcs.revocations))
		{
			protected.GET("/auth/me", svcs.authHandler.Me)
			protected.POST("/auth/logout", svcs.authHandler.Logout)

			protected.GET("/users", svcs.userHandler.List)

			protected.POST("/projects", svcs.projectHandler.Create)
			protected.GET("/projects", svcs.projectHandler.List)
			protected.GET("/projects/:id", svcs.projectHandler.GetByID)
			protected.PUT("/projects/:id/members", svcs.projectHandler.AddMembers)
			protected.DELETE("/projects/:id/members/:userId", svcs.projectHandler.RemoveMember)
			protected.POST("/projects/:id/transfer", svcs.projectHandler.TransferOwnership)
			protected.POST("/projects/:id/exit", svcs.projectHandler.Exit)
			protected.DELETE("/projects/:id", svcs.projectHandler.Delete)
		}
	}
}
