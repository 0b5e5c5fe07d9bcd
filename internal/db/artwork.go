package db

import "time"

type Artwork struct {
	ID             string    `gorm:"primaryKey;size:64"`
	SessionID      string    `gorm:"size:64;uniqueIndex;not null"`
	Title          string    `gorm:"size:140;not null"`
	Image          string    `gorm:"type:text;not null"`
	CombinedPrompt string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null"`
	Stakes         []ArtworkStake
	Contributions  []Contribution
	Votes          []ArtworkVote
}

type ArtworkStake struct {
	ID        uint      `gorm:"primaryKey"`
	ArtworkID string    `gorm:"size:64;index;not null;uniqueIndex:idx_stakes_artwork_address"`
	Address   string    `gorm:"size:128;not null;uniqueIndex:idx_stakes_artwork_address"`
	Percent   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
