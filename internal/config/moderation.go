package config

import "time"

const (
	// Ban
	TemporaryBanDuration = 24 * time.Hour
	AlertPriorityFloor   = 3

	// Dialog
	MinRating = 1
	MaxRating = 5
)

// ReportCategoryWeights maps a report category to its review priority.
// Higher is reviewed first; unknown categories fall back to 1.
var ReportCategoryWeights = map[string]int{
	"spam":          1,
	"inappropriate": 2,
	"harassment":    3,
	"hate_speech":   4,
	"underage":      5,
	"threat":        5,
	"other":         1,
}

// Moods are the queue modes a user can look for. Users are only paired
// inside the same mode.
var Moods = []string{"chat", "hype", "vent", "chill", "squad"}

// DefaultMood is used when the client does not pick one.
const DefaultMood = "chat"
