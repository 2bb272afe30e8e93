package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(30 * time.Minute)

	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(30*time.Minute), s.Next(now))
	assert.Equal(t, "@every 30m0s", s.String())
}

func TestDailySchedule_NextSameDay(t *testing.T) {
	s := NewDailySchedule(15, 30, time.UTC)

	morning := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	next := s.Next(morning)
	assert.Equal(t, time.Date(2026, 6, 10, 15, 30, 0, 0, time.UTC), next)
}

func TestDailySchedule_RollsToNextDay(t *testing.T) {
	s := NewDailySchedule(3, 0, time.UTC)

	afternoon := time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC)
	next := s.Next(afternoon)
	assert.Equal(t, time.Date(2026, 6, 11, 3, 0, 0, 0, time.UTC), next)

	// Exactly at the configured time: the next run is tomorrow.
	exact := time.Date(2026, 6, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 11, 3, 0, 0, 0, time.UTC), s.Next(exact))
}

func TestDailySchedule_HonorsLocation(t *testing.T) {
	almaty, err := time.LoadLocation("Asia/Almaty")
	assert.NoError(t, err)

	s := NewDailySchedule(3, 0, almaty)

	// 23:00 UTC on the 10th is already 04:00 on the 11th in Almaty (+5),
	// so the next run is 03:00 Almaty on the 12th.
	utcEvening := time.Date(2026, 6, 10, 23, 0, 0, 0, time.UTC)
	next := s.Next(utcEvening)
	assert.Equal(t, time.Date(2026, 6, 12, 3, 0, 0, 0, almaty), next)
}

func TestDailySchedule_NilLocationDefaultsUTC(t *testing.T) {
	s := NewDailySchedule(3, 0, nil)
	assert.Equal(t, time.UTC, s.Location)
}
