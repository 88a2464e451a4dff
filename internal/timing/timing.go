// Package timing formats elapsed time for the worker's processing logs.
package timing

import (
	"fmt"
	"time"
)

// Clock renders d as hh:mm:ss. Negative durations render as zero.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Since is Clock(time.Since(start)).
func Since(start time.Time) string {
	return Clock(time.Since(start))
}

// Millis renders a millisecond count, as reported by the generation
// backends' metrics, as hh:mm:ss.
func Millis(ms int64) string {
	return Clock(time.Duration(ms) * time.Millisecond)
}
