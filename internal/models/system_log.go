package models

import (
	"time"
)

// SystemLog keeps server-side detail for audit and failure diagnosis.
type SystemLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;index" json:"level"` // info, warn, error
	Module    string    `gorm:"size:50;index" json:"module"`
	Action    string    `gorm:"size:50" json:"action"`
	Message   string    `gorm:"size:2000" json:"message"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	Extra     string    `gorm:"type:text" json:"extra"` // JSON detail
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }
