// Package timeutil formats accumulated attempt durations for display.
package timeutil

import "fmt"

// FormatSeconds renders a second count as M:SS, or H:MM:SS once it
// reaches an hour.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
