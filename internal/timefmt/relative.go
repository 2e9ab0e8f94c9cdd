package timefmt

import (
	"fmt"
	"time"
)

// UnknownDate is returned for timestamps that cannot be parsed
const UnknownDate = "unknown date"

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
)

// Relative formats the timestamp string relative to the current time
func Relative(timestamp string) string {
	return RelativeAt(timestamp, time.Now())
}

// RelativeAt formats the timestamp string relative to now
func RelativeAt(timestamp string, now time.Time) string {
	t, err := Parse(timestamp)
	if err != nil {
		return UnknownDate
	}
	return Since(t, now)
}

// RelativeTime formats t relative to now. The zero time reads as UnknownDate.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return UnknownDate
	}
	return Since(t, now)
}

// Since buckets now-t into the coarsest whole unit. Months are 30 days and
// years 365 days; every division floors, so 28-29 days read as "0 months ago"
// and 360-364 days as "0 years ago". Future times read as "just now".
func Since(t, now time.Time) string {
	seconds := int64(now.Sub(t) / time.Second)
	if seconds < secondsPerMinute {
		return "just now"
	}

	minutes := seconds / secondsPerMinute
	hours := seconds / secondsPerHour
	days := seconds / secondsPerDay
	weeks := days / 7
	months := days / 30
	years := days / 365

	switch {
	case minutes < 60:
		return ago(minutes, "minute")
	case hours < 24:
		return ago(hours, "hour")
	case days < 7:
		return ago(days, "day")
	case weeks < 4:
		return ago(weeks, "week")
	case months < 12:
		return ago(months, "month")
	default:
		return ago(years, "year")
	}
}

func ago(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
