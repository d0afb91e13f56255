package models

import "time"

const (
	MessageText   = "text"
	MessageSystem = "system"
)

// Message is a saved chat line. ID grows monotonically and orders messages
// inside a session.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"not null;index:idx_session_msg,priority:1" json:"session_id"`
	SenderID  string    `gorm:"not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Type      string    `gorm:"not null" json:"type"`
	CreatedAt time.Time `gorm:"index:idx_session_msg,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
