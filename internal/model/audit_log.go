package model

import "gorm.io/datatypes"

// AuditLog records one mutation performed through the engine
type AuditLog struct {
	BaseModel
	UserID     int               `gorm:"index" json:"user_id"`
	Action     string            `gorm:"type:varchar(32);not null" json:"action"`
	ObjectType string            `gorm:"type:varchar(32);not null;index" json:"object_type"`
	ObjectID   int               `gorm:"index" json:"object_id"`
	Meta       datatypes.JSONMap `gorm:"type:json" json:"meta"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
