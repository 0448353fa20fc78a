package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/huddlehq/huddle/backend/internal/middleware"
	"github.com/huddlehq/huddle/backend/internal/services"
	"github.com/huddlehq/huddle/backend/pkg/response"
)

type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(db *gorm.DB) *ProjectHandler {
	return &ProjectHandler{
		projectService: services.NewProjectService(db),
	}
}

type CreateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddMembersRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required,min=1"`
}

type TransferOwnershipRequest struct {
	NewAdminID uint `json:"new_admin_id" binding:"required"`
}

func projectIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return 0, false
	}
	return uint(id), true
}

// Create creates a project with the caller as sole admin
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.Create(req.Name, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, project)
}

// List returns the caller's projects
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projectService.ListForUser(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"projects": projects})
}

// GetByID returns a project with its membership
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}

	project, err := h.projectService.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, project)
}

// AddMembers appends users as collaborators
// PUT /api/projects/:id/members
func (h *ProjectHandler) AddMembers(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}

	var req AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.AddMembers(id, req.UserIDs, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, project)
}

// RemoveMember removes a member
// DELETE /api/projects/:id/members/:userId
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	project, svcErr := h.projectService.RemoveMember(id, uint(targetID), middleware.GetUserID(c))
	if svcErr != nil {
		response.Error(c, svcErr)
		return
	}

	response.Success(c, project)
}

// TransferOwnership grants the admin role to another member
// POST /api/projects/:id/transfer
func (h *ProjectHandler) TransferOwnership(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}

	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.TransferOwnership(id, req.NewAdminID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, project)
}

// Exit removes the caller from the project
// POST /api/projects/:id/exit
func (h *ProjectHandler) Exit(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}

	project, err := h.projectService.Exit(id, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, project)
}

// Delete removes the project entirely
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}

	if err := h.projectService.Delete(id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "project deleted successfully"})
}
