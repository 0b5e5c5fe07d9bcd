package db

import "time"

// Contribution archives one artist's locked turn alongside the artwork.
type Contribution struct {
	ID          uint      `gorm:"primaryKey"`
	ArtworkID   string    `gorm:"size:64;index;not null;uniqueIndex:idx_contributions_artwork_address"`
	Address     string    `gorm:"size:128;not null;uniqueIndex:idx_contributions_artwork_address"`
	TurnIndex   int       `gorm:"not null"`
	Prompt      string    `gorm:"type:text;not null;default:''"`
	DrawingData string    `gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time `gorm:"not null"`
}
