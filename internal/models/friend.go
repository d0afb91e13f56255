package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
)

// FriendRequest is a directed edge UserID -> FriendID. Accepting a request
// materializes the reverse accepted edge, so an accepted friendship is two
// rows. Only one pending request may exist per unordered pair.
type FriendRequest struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_friend_edge,priority:1" json:"user_id"`
	FriendID  string    `gorm:"not null;uniqueIndex:idx_friend_edge,priority:2;index:idx_friend_target" json:"friend_id"`
	Status    string    `gorm:"not null;index" json:"status"`
	PairKey   string    `gorm:"not null;uniqueIndex:idx_friend_pending_pair,where:status = 'pending'" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FriendRequest) TableName() string { return "friend_requests" }

func (f *FriendRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.PairKey == "" {
		f.PairKey = PairKey(f.UserID, f.FriendID)
	}
	return
}

// Friend is one entry of a friends list.
type Friend struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Since       time.Time `json:"since"`
}
