package models

import "time"

// QueueEntry is one user waiting to be paired. At most one row exists per
// user. MatchedWith, MatchedAt and SessionID are written only by the pairing
// claim; a row with MatchedWith set is invisible to scans and waits for its
// owner to consume it.
type QueueEntry struct {
	UserID      string     `gorm:"primaryKey" json:"user_id"`
	DisplayName string     `gorm:"not null" json:"display_name"`
	LookingFor  string     `gorm:"not null;index:idx_queue_scan,priority:1" json:"looking_for"`
	IsGuest     bool       `gorm:"not null" json:"is_guest"`
	JoinedAt    time.Time  `gorm:"not null;index:idx_queue_scan,priority:2" json:"joined_at"`
	MatchedWith *string    `json:"matched_with,omitempty"`
	MatchedAt   *time.Time `json:"matched_at,omitempty"`
	SessionID   *string    `json:"session_id,omitempty"`
}

func (QueueEntry) TableName() string { return "queue_entries" }

// IsMatched reports whether the entry has been claimed by a partner.
func (q *QueueEntry) IsMatched() bool {
	return q.MatchedWith != nil
}

// QueueStatus is what a waiting client sees about its place in the queue.
type QueueStatus struct {
	InQueue       bool          `json:"in_queue"`
	Matched       bool          `json:"matched"`
	SessionID     string        `json:"session_id,omitempty"`
	LookingFor    string        `json:"looking_for,omitempty"`
	Position      int           `json:"position"`
	UsersInQueue  int64         `json:"users_in_queue"`
	EstimatedWait time.Duration `json:"estimated_wait"`
	WaitingFor    time.Duration `json:"waiting_for"`
}
