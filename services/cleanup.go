package services

import (
	"time"

	log "github.com/sirupsen/logrus"

	"house-rent-server/models"
	"house-rent-server/storage"
)

// CleanupUnverifiedUsers deletes accounts that never confirmed their email
// within 24 hours of registering. Scheduled from main on a cron interval.
func CleanupUnverifiedUsers() {
	cutoff := time.Now().Add(-24 * time.Hour)
	res := storage.DB.
		Where("email_verified = ? AND created_at < ?", false, cutoff).
		Delete(&models.User{})
	if res.Error != nil {
		log.WithError(res.Error).Error("unverified user cleanup failed")
		return
	}
	if res.RowsAffected > 0 {
		log.Infof("auto-cleaned %d unverified user(s)", res.RowsAffected)
	}
}
