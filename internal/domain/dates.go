package domain

import "time"

// DateFormat is the wire format for all calendar dates.
const DateFormat = "2006-01-02"

// DateOnly strips the time-of-day so calendar dates compare cleanly
// regardless of how the value was produced.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
