package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/huddlehq/huddle/backend/internal/config"
	"github.com/huddlehq/huddle/backend/internal/middleware"
	"github.com/huddlehq/huddle/backend/internal/services"
	"github.com/huddlehq/huddle/backend/pkg/response"
)

// UserHandler serves user lookups for the member picker.
type UserHandler struct {
	authService *services.AuthService
}

func NewUserHandler(db *gorm.DB, cfg *config.Config, revocations services.RevocationStore) *UserHandler {
	return &UserHandler{
		authService: services.NewAuthService(db, &cfg.JWT, revocations),
	}
}

// List returns every user except the caller
// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.authService.ListOthers(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"users": users})
}
