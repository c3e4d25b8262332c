package utils

import (
	"encoding/json"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/datatypes"

	"house-rent-server/models"
	"house-rent-server/storage"
)

// Audit records an admin mutation with before/after snapshots.
func Audit(ctx iris.Context, action, resourceType string, resourceID uint, before interface{}, after interface{}) {
	var beforeJSON, afterJSON datatypes.JSON
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			beforeJSON = datatypes.JSON(b)
		}
	}
	if after != nil {
		if a, err := json.Marshal(after); err == nil {
			afterJSON = datatypes.JSON(a)
		}
	}
	var adminID uint
	if tok := jsonWT.Get(ctx); tok != nil {
		if at, ok := tok.(*AccessToken); ok {
			adminID = at.ID
		}
	}
	entry := models.AuditLog{
		AdminUserID:  adminID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       beforeJSON,
		After:        afterJSON,
		IPAddress:    clientIP(ctx),
	}
	storage.DB.Create(&entry)
}
