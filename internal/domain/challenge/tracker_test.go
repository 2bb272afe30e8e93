package challenge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
)

var trackerNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func weeklyDef(id string, start, end time.Time, target int) Definition {
	return Definition{
		ID:             id,
		Title:          "Weekly " + id,
		StartDate:      start,
		EndDate:        end,
		Type:           TypeWeekly,
		Condition:      rule.ConditionSpec{Kind: rule.KindTotalCount},
		ConditionValue: target,
		Points:         30,
	}
}

func fixedStats(total int) func(Definition) rule.Snapshot {
	return func(Definition) rule.Snapshot {
		return rule.Snapshot{TotalEntries: total}
	}
}

func TestApply_ProgressInsideWindow(t *testing.T) {
	tracker := NewTracker()
	def := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		5)

	occurred := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	result := tracker.Apply("user-1", occurred, []Definition{def},
		map[string]*UserChallenge{}, fixedStats(3), time.UTC, trackerNow)

	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.NewlyCompleted)
	assert.Len(t, result.Updated, 1)
	assert.Equal(t, 3, result.Updated[0].Progress)
}

func TestApply_OutOfWindowSkipped(t *testing.T) {
	tracker := NewTracker()
	def := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		5)

	// Event before the window opens.
	before := time.Date(2026, 6, 7, 23, 0, 0, 0, time.UTC)
	result := tracker.Apply("user-1", before, []Definition{def},
		map[string]*UserChallenge{}, fixedStats(3), time.UTC, trackerNow)
	assert.Equal(t, []string{"w1"}, result.Skipped)
	assert.Empty(t, result.Updated)

	// Event after the window closes.
	after := time.Date(2026, 6, 15, 0, 30, 0, 0, time.UTC)
	result = tracker.Apply("user-1", after, []Definition{def},
		map[string]*UserChallenge{}, fixedStats(3), time.UTC, trackerNow)
	assert.Equal(t, []string{"w1"}, result.Skipped)
}

func TestApply_WindowBoundariesInclusive(t *testing.T) {
	tracker := NewTracker()
	def := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		5)

	firstMoment := time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)
	lastMoment := time.Date(2026, 6, 14, 23, 59, 59, 0, time.UTC)

	for _, occurred := range []time.Time{firstMoment, lastMoment} {
		result := tracker.Apply("user-1", occurred, []Definition{def},
			map[string]*UserChallenge{}, fixedStats(1), time.UTC, trackerNow)
		assert.Empty(t, result.Skipped, "moment %s should be in window", occurred)
	}
}

func TestApply_CompletionWriteOnce(t *testing.T) {
	tracker := NewTracker()
	def := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		5)
	prior := map[string]*UserChallenge{}

	occurred := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	result := tracker.Apply("user-1", occurred, []Definition{def},
		prior, fixedStats(5), time.UTC, trackerNow)

	assert.Len(t, result.NewlyCompleted, 1)
	row := result.NewlyCompleted[0].Row
	assert.True(t, row.Completed)
	assert.NotNil(t, row.CompletedAt)
	prior[row.ChallengeID] = row

	// Re-applying with more progress: already completed, nothing changes.
	again := tracker.Apply("user-1", occurred.Add(time.Hour), []Definition{def},
		prior, fixedStats(9), time.UTC, trackerNow.Add(time.Hour))
	assert.Empty(t, again.NewlyCompleted)
	assert.Empty(t, again.Updated)
	assert.Equal(t, 5, row.Progress)
}

func TestApply_ProgressMonotonic(t *testing.T) {
	tracker := NewTracker()
	def := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		10)
	prior := map[string]*UserChallenge{}

	occurred := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	first := tracker.Apply("user-1", occurred, []Definition{def},
		prior, fixedStats(4), time.UTC, trackerNow)
	row := first.Updated[0]
	prior[row.ChallengeID] = row

	// A smaller window recomputation must not pull progress back.
	again := tracker.Apply("user-1", occurred, []Definition{def},
		prior, fixedStats(2), time.UTC, trackerNow.Add(time.Hour))
	assert.Empty(t, again.Updated)
	assert.Equal(t, 4, row.Progress)
}

func TestDefinition_ContainsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Almaty")
	assert.NoError(t, err)

	def := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		5)

	// 20:00 UTC on June 8th is already June 9th in Almaty.
	moment := time.Date(2026, 6, 8, 20, 0, 0, 0, time.UTC)
	assert.True(t, def.Contains(moment, time.UTC))
	assert.False(t, def.Contains(moment, loc))
}

func TestDefinition_Expired(t *testing.T) {
	def := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		5)

	assert.False(t, def.Expired(time.Date(2026, 6, 14, 23, 0, 0, 0, time.UTC), time.UTC))
	assert.True(t, def.Expired(time.Date(2026, 6, 15, 0, 0, 1, 0, time.UTC), time.UTC))
}

func TestDefinition_Validate(t *testing.T) {
	valid := weeklyDef("w1",
		time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		5)
	assert.NoError(t, valid.Validate())

	inverted := valid
	inverted.StartDate, inverted.EndDate = inverted.EndDate, inverted.StartDate
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidWindow)

	noPoints := valid
	noPoints.Points = 0
	assert.ErrorIs(t, noPoints.Validate(), ErrInvalidDefinition)
}
