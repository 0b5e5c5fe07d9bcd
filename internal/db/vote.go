package db

import "time"

type ArtworkVote struct {
	ID        uint      `gorm:"primaryKey"`
	ArtworkID string    `gorm:"size:64;index;not null;uniqueIndex:idx_artwork_votes_artwork_voter"`
	Address   string    `gorm:"size:128;not null;uniqueIndex:idx_artwork_votes_artwork_voter"`
	Candidate int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
