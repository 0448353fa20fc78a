package models

import (
	"time"
)

// Role is the closed set of membership roles.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleCollaborator Role = "collaborator"
)

// Valid reports whether r is one of the two permitted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCollaborator:
		return true
	}
	return false
}

// ProjectMember ties a user to a project with a role. The auto-increment row
// id doubles as insertion order: admin succession promotes the surviving
// member with the smallest id.
type ProjectMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"uniqueIndex:idx_project_user;not null" json:"project_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_project_user;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      Role      `gorm:"size:50;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProjectMember) TableName() string { return "project_members" }
