package monitor

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// FormatElapsed formats a run time as "X.Xms" or "X.Xs"
func FormatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// ShortPath keeps the tail of path so that it fits in width runes.
func ShortPath(path string, width int) string {
	n := utf8.RuneCountInString(path)
	if n <= width || width < 2 {
		return path
	}
	runes := []rune(path)
	return "…" + string(runes[n-width+1:])
}
