package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a registered or guest participant. Guests get a generated alias.
type User struct {
	ID                string     `gorm:"primaryKey" json:"id"`
	DisplayName       string     `gorm:"not null" json:"display_name"`
	IsGuest           bool       `gorm:"not null" json:"is_guest"`
	BannedUntil       *time.Time `json:"banned_until,omitempty"`
	BannedPermanently bool       `gorm:"not null" json:"banned_permanently"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// BeforeCreate генерує UUID, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// IsBanned reports whether the user may not use matchmaking at now.
func (u *User) IsBanned(now time.Time) bool {
	if u.BannedPermanently {
		return true
	}
	return u.BannedUntil != nil && now.Before(*u.BannedUntil)
}
