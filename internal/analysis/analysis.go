// Package analysis scores reports so moderators see the most severe ones first.
package analysis

import (
	"strings"

	"rando/backend/internal/config"
)

// GetWeight returns the review priority for a report category.
// Unknown categories get the lowest priority.
func GetWeight(category string) int {
	if w, ok := config.ReportCategoryWeights[strings.ToLower(strings.TrimSpace(category))]; ok {
		return w
	}
	return 1
}

// NeedsAlert reports whether a report of this priority should page moderators.
func NeedsAlert(priority int) bool {
	return priority >= config.AlertPriorityFloor
}
