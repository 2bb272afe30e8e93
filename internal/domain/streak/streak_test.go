package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(yyyy int, mm time.Month, dd, hh int) time.Time {
	return time.Date(yyyy, mm, dd, hh, 0, 0, 0, time.UTC)
}

func TestCompute_EmptyHistory(t *testing.T) {
	s := Compute(nil, day(2026, 6, 10, 12), time.UTC)
	assert.Equal(t, Streak{}, s)
}

func TestCompute_ConsecutiveDays(t *testing.T) {
	times := []time.Time{
		day(2026, 6, 8, 9),
		day(2026, 6, 9, 20),
		day(2026, 6, 10, 7),
	}
	now := day(2026, 6, 10, 12)

	s := Compute(times, now, time.UTC)
	assert.Equal(t, 3, s.Current)
	assert.Equal(t, 3, s.Longest)
}

func TestCompute_MultipleEntriesSameDayCountOnce(t *testing.T) {
	times := []time.Time{
		day(2026, 6, 9, 8),
		day(2026, 6, 9, 13),
		day(2026, 6, 9, 22),
		day(2026, 6, 10, 10),
	}
	now := day(2026, 6, 10, 12)

	s := Compute(times, now, time.UTC)
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, 2, s.Longest)
}

func TestCompute_LastEntryYesterdayKeepsStreak(t *testing.T) {
	times := []time.Time{
		day(2026, 6, 8, 9),
		day(2026, 6, 9, 9),
	}
	now := day(2026, 6, 10, 12)

	// The current day is still in progress, the run survives.
	s := Compute(times, now, time.UTC)
	assert.Equal(t, 2, s.Current)
}

func TestCompute_GapBreaksCurrentButKeepsLongest(t *testing.T) {
	times := []time.Time{
		day(2026, 6, 1, 9),
		day(2026, 6, 2, 9),
		day(2026, 6, 3, 9),
		day(2026, 6, 4, 9),
		// gap 5-7
		day(2026, 6, 8, 9),
		day(2026, 6, 9, 9),
	}
	now := day(2026, 6, 9, 12)

	s := Compute(times, now, time.UTC)
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, 4, s.Longest)
}

func TestCompute_StaleHistoryHasZeroCurrent(t *testing.T) {
	times := []time.Time{
		day(2026, 6, 1, 9),
		day(2026, 6, 2, 9),
	}
	now := day(2026, 6, 9, 12)

	s := Compute(times, now, time.UTC)
	assert.Equal(t, 0, s.Current)
	assert.Equal(t, 2, s.Longest)
}

func TestCompute_UnsortedInput(t *testing.T) {
	times := []time.Time{
		day(2026, 6, 10, 7),
		day(2026, 6, 8, 9),
		day(2026, 6, 9, 20),
	}
	now := day(2026, 6, 10, 12)

	s := Compute(times, now, time.UTC)
	assert.Equal(t, 3, s.Current)
}

func TestCompute_TimezoneBoundary(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Almaty")
	assert.NoError(t, err)

	// 20:00 UTC on the 8th and 01:00 UTC on the 9th are the 9th 01:00
	// and the 9th 06:00 in Almaty - one local day, not two.
	times := []time.Time{
		time.Date(2026, 6, 8, 20, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 9, 1, 0, 0, 0, time.UTC),
	}
	now := time.Date(2026, 6, 9, 10, 0, 0, 0, time.UTC)

	s := Compute(times, now, loc)
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 1, s.Longest)

	sUTC := Compute(times, now, time.UTC)
	assert.Equal(t, 2, sUTC.Current)
}

func TestMissedDays(t *testing.T) {
	now := day(2026, 6, 10, 12)

	assert.Equal(t, 0, MissedDays(nil, now, time.UTC))

	// Last entry today: nothing missed.
	assert.Equal(t, 0, MissedDays([]time.Time{day(2026, 6, 10, 8)}, now, time.UTC))

	// Last entry yesterday: today is not over yet.
	assert.Equal(t, 0, MissedDays([]time.Time{day(2026, 6, 9, 8)}, now, time.UTC))

	// Last entry four days ago: three full days missed.
	assert.Equal(t, 3, MissedDays([]time.Time{day(2026, 6, 6, 8)}, now, time.UTC))

	// Uses the latest entry regardless of order.
	times := []time.Time{day(2026, 6, 1, 8), day(2026, 6, 8, 8), day(2026, 6, 4, 8)}
	assert.Equal(t, 1, MissedDays(times, now, time.UTC))
}
