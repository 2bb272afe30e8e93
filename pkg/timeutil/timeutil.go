// Package timeutil provides timezone-aware calendar-day utilities for the
// PawLog Progress Engine. Streaks, challenge windows, and absence detection
// all operate on calendar days in the tracked subject's local timezone, so
// every day-boundary computation in the engine goes through this package.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// DayFormat is the canonical format for day keys ("2006-01-02").
const DayFormat = "2006-01-02"

// LoadLocation loads an IANA timezone by name, falling back to UTC when the
// name is empty or unknown. The engine must never fail a user request
// because of a missing tzdata entry.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns the start of the calendar day (00:00:00) containing t
// in the given location.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of the calendar day containing t
// in the given location.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// DayKey returns the canonical "YYYY-MM-DD" key for the calendar day
// containing t in the given location. Used for grouping entries by day and
// for de-duplicating absence penalties per window.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayFormat)
}

// AddDays returns the start of the day n days after (or before, if negative)
// the day containing t. Uses AddDate so DST transitions keep day boundaries
// correct.
func AddDays(t time.Time, n int, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, n)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayKey(a, loc) == DayKey(b, loc)
}

// DaysBetween returns the number of whole calendar days from the day of a
// to the day of b in loc. Positive when b is after a, negative when before,
// zero for the same day.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	start := StartOfDay(a, loc)
	end := StartOfDay(b, loc)

	if start.After(end) {
		return -DaysBetween(b, a, loc)
	}

	days := 0
	for start.Before(end) {
		start = start.AddDate(0, 0, 1)
		days++
	}
	return days
}

// IsToday reports whether t is on the same calendar day as now in loc.
func IsToday(t, now time.Time, loc *time.Location) bool {
	return SameDay(t, now, loc)
}

// IsYesterday reports whether t is on the calendar day before now in loc.
func IsYesterday(t, now time.Time, loc *time.Location) bool {
	return DayKey(t, loc) == DayKey(AddDays(now, -1, loc), loc)
}

// ElapsedDaysSince returns the number of fully elapsed calendar days in loc
// strictly between the day of t and the day of now. The current day is never
// counted: it has not elapsed yet. This is the "missed days" measure used by
// absence rules - a subject that last logged on day D has missed
// ElapsedDaysSince(D, now) days.
func ElapsedDaysSince(t, now time.Time, loc *time.Location) int {
	diff := DaysBetween(t, now, loc) - 1
	if diff < 0 {
		return 0
	}
	return diff
}
