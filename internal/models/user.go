package models

import "time"

// User exists here only as the actor behind authenticated requests and
// payment soft-deletes. Account management belongs to the main application.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"not null;uniqueIndex"`
	Password  string `gorm:"not null"` // bcrypt hash
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
