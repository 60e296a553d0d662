package cli

import (
	"fmt"
	"time"
)

// FormatMs formats a millisecond position, e.g. "1m04.5s".
func FormatMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	return fmt.Sprintf("%dm%04.1fs", mins, secs-float64(mins*60))
}

// FormatDuration formats an elapsed time like FormatMs.
func FormatDuration(d time.Duration) string {
	return FormatMs(d.Milliseconds())
}

// FormatTempo formats microseconds per beat as BPM, e.g. "120 BPM".
func FormatTempo(us uint32) string {
	if us == 0 {
		return "-"
	}
	bpm := 60e6 / float64(us)
	if bpm == float64(int(bpm)) {
		return fmt.Sprintf("%d BPM", int(bpm))
	}
	return fmt.Sprintf("%.2f BPM", bpm)
}
