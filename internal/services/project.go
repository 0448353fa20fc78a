package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/huddlehq/huddle/backend/internal/models"
	"github.com/huddlehq/huddle/backend/pkg/response"
)

// ProjectService owns project and membership state transitions. Every
// mutation is an atomic conditional update: the project and its members are
// re-read inside a transaction, the operation's precondition is checked
// against that fresh read, and the commit goes through a guarded bump of the
// project's version column. A losing concurrent writer gets a Conflict, which
// is retried once before surfacing.
type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

// loadProject reads a project with members in insertion order.
func loadProject(tx *gorm.DB, projectID uint) (*models.Project, error) {
	var project models.Project
	err := tx.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("project_members.id ASC")
		}).
		Preload("Members.User").
		First(&project, projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("project not found")
		}
		return nil, err
	}
	return &project, nil
}

// mutate runs fn against a fresh read of the project inside a transaction.
// The guarded version bump fails with Conflict when another writer committed
// between the read and the commit; one retry re-reads current state.
func (s *ProjectService) mutate(projectID uint, fn func(tx *gorm.DB, project *models.Project) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			project, loadErr := loadProject(tx, projectID)
			if loadErr != nil {
				return loadErr
			}

			result := tx.Model(&models.Project{}).
				Where("id = ? AND version = ?", project.ID, project.Version).
				Update("version", project.Version+1)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return response.NewConflict("project was modified concurrently")
			}

			return fn(tx, project)
		})
		if !response.IsConflict(err) {
			return err
		}
	}
	return err
}

func findMember(project *models.Project, userID uint) *models.ProjectMember {
	for i := range project.Members {
		if project.Members[i].UserID == userID {
			return &project.Members[i]
		}
	}
	return nil
}

func isAdmin(project *models.Project, userID uint) bool {
	member := findMember(project, userID)
	return member != nil && member.Role == models.RoleAdmin
}

// Create creates a project with the creator as its sole admin member.
func (s *ProjectService) Create(name string, creatorID uint) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, response.NewValidation("project name is required")
	}

	project := models.Project{
		Name:      name,
		Version:   1,
		CreatedBy: creatorID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		member := models.ProjectMember{
			ProjectID: project.ID,
			UserID:    creatorID,
			Role:      models.RoleAdmin,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	LogInfo("project", "create", "project created", &creatorID, map[string]interface{}{
		"project_id": project.ID,
		"name":       project.Name,
	})

	return s.GetByID(project.ID)
}

// ListForUser returns the projects the user is a member of.
func (s *ProjectService) ListForUser(userID uint) ([]models.Project, error) {
	var projects []models.Project
	err := s.db.
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("project_members.id ASC")
		}).
		Preload("Members.User").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// GetByID returns a project with its members in insertion order.
func (s *ProjectService) GetByID(projectID uint) (*models.Project, error) {
	return loadProject(s.db, projectID)
}

// AddMembers appends the given users as collaborators. The requester must be
// an admin member. Users already in the project are silently skipped, so the
// operation is idempotent.
func (s *ProjectService) AddMembers(projectID uint, userIDs []uint, requesterID uint) (*models.Project, error) {
	if len(userIDs) == 0 {
		return nil, response.NewValidation("at least one user is required")
	}

	err := s.mutate(projectID, func(tx *gorm.DB, project *models.Project) error {
		if !isAdmin(project, requesterID) {
			return response.NewUnauthorized("only admins can add members")
		}

		seen := make(map[uint]bool)
		var newIDs []uint
		for _, id := range userIDs {
			if seen[id] || findMember(project, id) != nil {
				continue
			}
			seen[id] = true
			newIDs = append(newIDs, id)
		}
		if len(newIDs) == 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("id IN ?", newIDs).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(newIDs)) {
			return response.NewNotFound("one or more users do not exist")
		}

		for _, id := range newIDs {
			member := models.ProjectMember{
				ProjectID: project.ID,
				UserID:    id,
				Role:      models.RoleCollaborator,
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	LogInfo("project", "add_members", "members added", &requesterID, map[string]interface{}{
		"project_id": projectID,
		"user_ids":   userIDs,
	})

	return s.GetByID(projectID)
}

// RemoveMember removes a member from the project. The requester must be an
// admin; the target is removed unconditionally, admins included. Admin
// succession is handled by the exit path, not here.
func (s *ProjectService) RemoveMember(projectID, targetID, requesterID uint) (*models.Project, error) {
	err := s.mutate(projectID, func(tx *gorm.DB, project *models.Project) error {
		if !isAdmin(project, requesterID) {
			return response.NewUnauthorized("only admins can remove members")
		}
		if findMember(project, targetID) == nil {
			return response.NewNotFound("user is not a member of the project")
		}
		return tx.Where("project_id = ? AND user_id = ?", project.ID, targetID).
			Delete(&models.ProjectMember{}).Error
	})
	if err != nil {
		return nil, err
	}

	LogInfo("project", "remove_member", "member removed", &requesterID, map[string]interface{}{
		"project_id": projectID,
		"target_id":  targetID,
	})

	return s.GetByID(projectID)
}

// TransferOwnership grants the admin role to an existing member. The
// requester keeps their own role, so multiple admins can coexist.
func (s *ProjectService) TransferOwnership(projectID, newAdminID, requesterID uint) (*models.Project, error) {
	err := s.mutate(projectID, func(tx *gorm.DB, project *models.Project) error {
		if !isAdmin(project, requesterID) {
			return response.NewUnauthorized("only admins can transfer ownership")
		}
		target := findMember(project, newAdminID)
		if target == nil {
			return response.NewValidation("new admin must be a member of the project")
		}
		return tx.Model(&models.ProjectMember{}).
			Where("project_id = ? AND user_id = ?", project.ID, newAdminID).
			Update("role", models.RoleAdmin).Error
	})
	if err != nil {
		return nil, err
	}

	LogInfo("project", "transfer_ownership", "ownership transferred", &requesterID, map[string]interface{}{
		"project_id":   projectID,
		"new_admin_id": newAdminID,
	})

	return s.GetByID(projectID)
}

// Exit removes the calling member from the project. A sole admin leaving a
// project that still has members promotes the earliest-inserted remaining
// member to admin first. The last member cannot exit; the project must be
// deleted instead.
func (s *ProjectService) Exit(projectID, memberID uint) (*models.Project, error) {
	err := s.mutate(projectID, func(tx *gorm.DB, project *models.Project) error {
		member := findMember(project, memberID)
		if member == nil {
			return response.NewNotFound("user is not a member of the project")
		}

		remove := func() error {
			return tx.Where("project_id = ? AND user_id = ?", project.ID, memberID).
				Delete(&models.ProjectMember{}).Error
		}

		switch member.Role {
		case models.RoleCollaborator:
			return remove()
		case models.RoleAdmin:
			otherAdmins := 0
			var successor *models.ProjectMember
			for i := range project.Members {
				m := &project.Members[i]
				if m.UserID == memberID {
					continue
				}
				if m.Role == models.RoleAdmin {
					otherAdmins++
				}
				// Members are in insertion order, keep the first
				if successor == nil {
					successor = m
				}
			}

			if otherAdmins >= 1 {
				return remove()
			}
			if successor == nil {
				return response.NewConflict("cannot exit as the last member, delete the project instead")
			}
			if err := tx.Model(&models.ProjectMember{}).
				Where("project_id = ? AND user_id = ?", project.ID, successor.UserID).
				Update("role", models.RoleAdmin).Error; err != nil {
				return err
			}
			return remove()
		}
		return response.NewValidation("unknown member role")
	})
	if err != nil {
		return nil, err
	}

	LogInfo("project", "exit", "member exited", &memberID, map[string]interface{}{
		"project_id": projectID,
	})

	return s.GetByID(projectID)
}

// Delete removes the project and all its memberships. The requester must be
// an admin member.
func (s *ProjectService) Delete(projectID, requesterID uint) error {
	err := s.mutate(projectID, func(tx *gorm.DB, project *models.Project) error {
		if !isAdmin(project, requesterID) {
			return response.NewUnauthorized("only admins can delete projects")
		}
		if err := tx.Where("project_id = ?", project.ID).
			Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Project{}, project.ID).Error
	})
	if err != nil {
		return err
	}

	LogInfo("project", "delete", "project deleted", &requesterID, map[string]interface{}{
		"project_id": projectID,
	})

	return nil
}
