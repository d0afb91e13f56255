package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReportPending   = "pending"
	ReportReviewed  = "reviewed"
	ReportResolved  = "resolved"
	ReportDismissed = "dismissed"
)

const (
	ActionWarn         = "warn"
	ActionMute         = "mute"
	ActionBanTemporary = "ban_temporary"
	ActionBanPermanent = "ban_permanent"
	ActionEscalate     = "escalate"
)

// Report is a user complaint about a chat partner. ActionTaken stays nil
// until a moderator resolves the report.
type Report struct {
	ID                  string     `gorm:"primaryKey" json:"id"`
	ReporterID          string     `gorm:"not null;index" json:"reporter_id"`
	ReporterIsGuest     bool       `gorm:"not null" json:"reporter_is_guest"`
	ReportedUserID      string     `gorm:"not null;index" json:"reported_user_id"`
	ReportedUserIsGuest bool       `gorm:"not null" json:"reported_user_is_guest"`
	SessionID           *string    `gorm:"index" json:"session_id,omitempty"`
	Reason              string     `gorm:"type:text;not null" json:"reason"`
	Category            string     `gorm:"not null" json:"category"`
	Evidence            *string    `gorm:"type:text" json:"evidence,omitempty"`
	Status              string     `gorm:"not null;index" json:"status"`
	Priority            int        `gorm:"not null" json:"priority"`
	ReviewedBy          *string    `json:"reviewed_by,omitempty"`
	ReviewNotes         *string    `gorm:"type:text" json:"review_notes,omitempty"`
	ActionTaken         *string    `json:"action_taken,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Report) TableName() string { return "reports" }

func (r *Report) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// IsFinal reports whether the report can no longer change status.
func (r *Report) IsFinal() bool {
	return r.Status == ReportResolved || r.Status == ReportDismissed
}

// ValidAction reports whether a is a known moderation action.
func ValidAction(a string) bool {
	switch a {
	case ActionWarn, ActionMute, ActionBanTemporary, ActionBanPermanent, ActionEscalate:
		return true
	}
	return false
}

// Block stops two users from ever being paired again.
type Block struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlockerID string    `gorm:"not null;uniqueIndex:idx_block_pair,priority:1" json:"blocker_id"`
	BlockedID string    `gorm:"not null;uniqueIndex:idx_block_pair,priority:2;index" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Block) TableName() string { return "blocks" }
