package services

import (
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/huddlehq/huddle/backend/internal/models"
	"github.com/huddlehq/huddle/backend/pkg/logger"
)

var systemLogDB *gorm.DB

// InitSystemLogger wires the database used by the package-level log helpers.
func InitSystemLogger(db *gorm.DB) {
	systemLogDB = db
}

// LogInfo records an info-level entry in system_logs.
func LogInfo(module, action, message string, userID *uint, extra map[string]interface{}) {
	writeLog("info", module, action, message, userID, extra)
}

// LogError records an error-level entry in system_logs.
func LogError(module, action, message string, userID *uint, extra map[string]interface{}) {
	writeLog("error", module, action, message, userID, extra)
}

func writeLog(level, module, action, message string, userID *uint, extra map[string]interface{}) {
	if systemLogDB == nil {
		return
	}

	var extraJSON string
	if extra != nil {
		if data, err := json.Marshal(extra); err == nil {
			extraJSON = string(data)
		}
	}

	entry := models.SystemLog{
		Level:   level,
		Module:  module,
		Action:  action,
		Message: message,
		UserID:  userID,
		Extra:   extraJSON,
	}
	if err := systemLogDB.Create(&entry).Error; err != nil {
		logger.Warn().Err(err).Str("module", module).Msg("failed to persist system log")
	}
}

var logCleanupCron *cron.Cron

// StartLogCleanupScheduler removes system log entries older than
// retentionDays once a day.
func StartLogCleanupScheduler(db *gorm.DB, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = 30
	}

	logCleanupCron = cron.New()
	logCleanupCron.AddFunc("@daily", func() {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		result := db.Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
		if result.Error != nil {
			logger.Error().Err(result.Error).Msg("system log cleanup failed")
			return
		}
		if result.RowsAffected > 0 {
			logger.Info().Int64("removed", result.RowsAffected).Msg("system log cleanup done")
		}
	})
	logCleanupCron.Start()

	logger.Info().Int("retention_days", retentionDays).Msg("system log cleanup scheduler started")
}

// StopLogCleanupScheduler stops the cleanup scheduler.
func StopLogCleanupScheduler() {
	if logCleanupCron != nil {
		logCleanupCron.Stop()
	}
}
