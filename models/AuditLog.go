package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records every admin mutation (verification reviews, house
// approvals, user edits) with before/after snapshots.
type AuditLog struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	AdminUserID  uint           `json:"admin_user_id" gorm:"index"`
	Action       string         `json:"action" gorm:"size:100;not null;index"`
	ResourceType string         `json:"resource_type" gorm:"size:50;not null"`
	ResourceID   uint           `json:"resource_id" gorm:"index"`
	Before       datatypes.JSON `json:"before"`
	After        datatypes.JSON `json:"after"`
	IPAddress    string         `json:"ip_address" gorm:"size:64"`
	CreatedAt    time.Time      `json:"created_at"`
}
