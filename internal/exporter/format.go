package exporter

import (
	"math"
	"strconv"
	"time"
)

// formatFloat writes the shortest round-trip representation; NaN is empty
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// formatTime writes RFC 3339 with nanoseconds; NaT is empty
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
