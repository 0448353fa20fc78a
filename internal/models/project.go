package models

import (
	"time"
)

// Project is a shared workspace. Version is an optimistic-lock counter: every
// membership mutation commits through a guarded bump of this column.
type Project struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"size:200;not null" json:"name"`
	Version   uint            `gorm:"not null;default:1" json:"-"`
	CreatedBy uint            `json:"created_by"`
	Members   []ProjectMember `gorm:"foreignKey:ProjectID" json:"members,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
