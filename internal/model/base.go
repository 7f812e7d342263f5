package model

import (
	"time"
)

// BaseModel contains common fields for all models
type BaseModel struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdOn"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"modifiedOn"`
}
