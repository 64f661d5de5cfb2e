package view

import (
	"fmt"
	"time"
)

// TimeLeft returns the seconds from now until deadline (unix seconds). A
// non-positive result means the deadline has passed.
func TimeLeft(deadline uint64, now time.Time) int64 {
	return int64(deadline) - now.Unix()
}

// BettingOpen reports whether the remaining time still allows bets.
func BettingOpen(secondsLeft int64) bool {
	return secondsLeft > 0
}

// FormatTimeLeft renders a countdown with at most three units.
func FormatTimeLeft(seconds int64) string {
	if seconds <= 0 {
		return "Betting ended"
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
