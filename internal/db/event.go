package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event is one entry in a session's audit log.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	SessionID string         `gorm:"size:64;index;not null"`
	Address   string         `gorm:"size:128;index"`
	Type      string         `gorm:"size:64;not null"`
	Phase     string         `gorm:"size:32;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
