package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKey(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Almaty")
	assert.NoError(t, err)

	// 2026-03-09 23:30 UTC is already 2026-03-10 in Almaty (UTC+5).
	utc := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-09", DayKey(utc, time.UTC))
	assert.Equal(t, "2026-03-10", DayKey(utc, loc))
}

func TestStartOfDayEndOfDay(t *testing.T) {
	moment := time.Date(2026, 7, 15, 14, 45, 12, 0, time.UTC)

	start := StartOfDay(moment, time.UTC)
	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), start)

	end := EndOfDay(moment, time.UTC)
	assert.Equal(t, 23, end.Hour())
	assert.Equal(t, 59, end.Minute())
	assert.Equal(t, "2026-07-15", DayKey(end, time.UTC))
}

func TestAddDays(t *testing.T) {
	moment := time.Date(2026, 1, 31, 18, 0, 0, 0, time.UTC)

	next := AddDays(moment, 1, time.UTC)
	assert.Equal(t, "2026-02-01", DayKey(next, time.UTC))

	prev := AddDays(moment, -2, time.UTC)
	assert.Equal(t, "2026-01-29", DayKey(prev, time.UTC))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 5, 4, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysBetween(a, b, time.UTC))
	assert.Equal(t, -3, DaysBetween(b, a, time.UTC))
	assert.Equal(t, 0, DaysBetween(a, a, time.UTC))
}

func TestSameDayAcrossTimezones(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	// 01:00 UTC and 23:00 UTC of the same UTC day are different days in
	// New York (20:00 prev day vs 18:00 same day).
	a := time.Date(2026, 4, 10, 1, 0, 0, 0, time.UTC)
	b := time.Date(2026, 4, 10, 23, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b, time.UTC))
	assert.False(t, SameDay(a, b, loc))
}

func TestElapsedDaysSince(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	// Same day: nothing has elapsed.
	assert.Equal(t, 0, ElapsedDaysSince(now.Add(-2*time.Hour), now, time.UTC))

	// Yesterday: the current day is still in progress, so zero.
	yesterday := time.Date(2026, 6, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, ElapsedDaysSince(yesterday, now, time.UTC))

	// Three days ago: two full days have passed with nothing logged.
	threeAgo := time.Date(2026, 6, 7, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, ElapsedDaysSince(threeAgo, now, time.UTC))

	// Future timestamps clamp to zero.
	future := now.Add(48 * time.Hour)
	assert.Equal(t, 0, ElapsedDaysSince(future, now, time.UTC))
}

func TestIsTodayIsYesterday(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	assert.True(t, IsToday(now.Add(-3*time.Hour), now, time.UTC))
	assert.False(t, IsToday(now.Add(-24*time.Hour), now, time.UTC))

	assert.True(t, IsYesterday(now.Add(-24*time.Hour), now, time.UTC))
	assert.False(t, IsYesterday(now, now, time.UTC))
}

func TestLoadLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
	assert.Equal(t, "Asia/Almaty", LoadLocation("Asia/Almaty").String())
}
