package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionActive = "active"
	SessionEnded  = "ended"

	SessionTypeRandom = "random"
	SessionTypeFriend = "friend"
)

// Session is a 1-on-1 chat between two users. PairKey is the unordered pair;
// the partial unique index keeps a single active session per pair.
type Session struct {
	ID               string     `gorm:"primaryKey" json:"id"`
	User1ID          string     `gorm:"not null;index" json:"user1_id"`
	User2ID          string     `gorm:"not null;index" json:"user2_id"`
	User1DisplayName string     `json:"user1_display_name"`
	User2DisplayName string     `json:"user2_display_name"`
	IsGuest1         bool       `gorm:"not null" json:"is_guest1"`
	IsGuest2         bool       `gorm:"not null" json:"is_guest2"`
	SessionType      string     `gorm:"not null" json:"session_type"`
	Mood             string     `json:"mood,omitempty"`
	PairKey          string     `gorm:"not null;uniqueIndex:idx_sessions_active_pair,where:status = 'active'" json:"-"`
	Status           string     `gorm:"not null;index" json:"status"`
	StartedAt        time.Time  `gorm:"not null" json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	EndedBy          *string    `json:"ended_by,omitempty"`
	User1Rating      *int       `json:"user1_rating,omitempty"`
	User2Rating      *int       `json:"user2_rating,omitempty"`
}

func (Session) TableName() string { return "chat_sessions" }

func (s *Session) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.PairKey == "" {
		s.PairKey = PairKey(s.User1ID, s.User2ID)
	}
	return
}

func (s *Session) IsActive() bool { return s.Status == SessionActive }

// HasParticipant reports whether userID is one of the two sides.
func (s *Session) HasParticipant(userID string) bool {
	return userID != "" && (s.User1ID == userID || s.User2ID == userID)
}

// Partner returns the other side of the session as seen by userID.
// ok is false when userID is not a participant.
func (s *Session) Partner(userID string) (partnerID, displayName string, isGuest, ok bool) {
	switch userID {
	case s.User1ID:
		return s.User2ID, s.User2DisplayName, s.IsGuest2, true
	case s.User2ID:
		return s.User1ID, s.User1DisplayName, s.IsGuest1, true
	default:
		return "", "", false, false
	}
}

// Duration is the time between start and end, or until now for active sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// PairKey is the order independent key of two user ids.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

// SessionSummary is shown on the end-of-chat screen.
type SessionSummary struct {
	Session      *Session      `json:"session"`
	MessageCount int64         `json:"message_count"`
	Duration     time.Duration `json:"duration"`
}
