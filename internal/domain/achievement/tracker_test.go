package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

var testNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func milestoneDef(id string, target int) Definition {
	return Definition{
		ID:           id,
		Title:        "Milestone " + id,
		Type:         TypeMilestone,
		Condition:    rule.ConditionSpec{Kind: rule.KindTotalCount},
		TriggerValue: target,
		CoinReward:   50,
		XPBonus:      100,
	}
}

func absenceDef(id string, days int, penalty int) Definition {
	return Definition{
		ID:            id,
		Title:         "Absence " + id,
		Type:          TypeAbsence,
		IsNegative:    true,
		PenaltyPoints: shared.Coins(penalty),
		Condition:     rule.ConditionSpec{Kind: rule.KindAbsence},
		TriggerValue:  days,
	}
}

func TestApply_ProgressAdvances(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{milestoneDef("m10", 10)}

	result := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 4}, defs, map[string]*UserAchievement{}, "", testNow)

	assert.Len(t, result.Updated, 1)
	assert.Empty(t, result.NewlyUnlocked)
	row := result.Updated[0]
	assert.Equal(t, 4, row.Progress)
	assert.False(t, row.Unlocked)
}

func TestApply_UnlockOnce(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{milestoneDef("m10", 10)}
	prior := map[string]*UserAchievement{}

	result := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 10}, defs, prior, "", testNow)
	assert.Len(t, result.NewlyUnlocked, 1)
	assert.Equal(t, "m10", result.NewlyUnlocked[0].Definition.ID)

	row := result.NewlyUnlocked[0].Row
	assert.True(t, row.Unlocked)
	assert.NotNil(t, row.UnlockedAt)

	// Re-applying the same snapshot does not unlock again.
	prior[row.AchievementID] = row
	again := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 11}, defs, prior, "", testNow.Add(time.Hour))
	assert.Empty(t, again.NewlyUnlocked)
	assert.Empty(t, again.Updated)
}

func TestApply_ProgressFrozenAfterUnlock(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{milestoneDef("m10", 10)}
	prior := map[string]*UserAchievement{}

	first := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 10}, defs, prior, "", testNow)
	row := first.NewlyUnlocked[0].Row
	prior[row.AchievementID] = row

	tracker.Apply("user-1", rule.Snapshot{TotalEntries: 50}, defs, prior, "", testNow.Add(time.Hour))
	assert.Equal(t, 10, row.Progress)
}

func TestApply_ProgressNeverDecreases(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{milestoneDef("m100", 100)}
	prior := map[string]*UserAchievement{}

	first := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 40}, defs, prior, "", testNow)
	row := first.Updated[0]
	prior[row.AchievementID] = row

	// A smaller snapshot (e.g. a per-window recomputation) must not pull
	// the stored progress back.
	again := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 25}, defs, prior, "", testNow.Add(time.Hour))
	assert.Empty(t, again.Updated)
	assert.Equal(t, 40, row.Progress)
}

func TestApply_MaxProgressCapsDisplayOnly(t *testing.T) {
	tracker := NewTracker(false)
	def := milestoneDef("m10", 10)
	def.MaxProgress = 5
	prior := map[string]*UserAchievement{}

	result := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 8}, []Definition{def}, prior, "", testNow)
	row := result.Updated[0]
	assert.Equal(t, 5, row.Progress)

	// The condition still fires on the uncapped value.
	prior[row.AchievementID] = row
	unlocked := tracker.Apply("user-1", rule.Snapshot{TotalEntries: 10}, []Definition{def}, prior, "", testNow)
	assert.Len(t, unlocked.NewlyUnlocked, 1)
}

func TestApply_NegativePenaltyOncePerWindow(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{absenceDef("gap3", 3, 20)}
	prior := map[string]*UserAchievement{}

	stats := rule.Snapshot{MissedDays: 3}

	result := tracker.Apply("user-1", stats, defs, prior, "2026-06-07", testNow)
	assert.Len(t, result.Penalties, 1)
	assert.Equal(t, "2026-06-07", result.Penalties[0].WindowKey)
	assert.EqualValues(t, 20, result.Penalties[0].Points)

	row := result.Penalties[0].Row
	assert.True(t, row.Unlocked)
	prior[row.AchievementID] = row

	// Same window: no second penalty even if the gap keeps growing.
	again := tracker.Apply("user-1", rule.Snapshot{MissedDays: 4}, defs, prior, "2026-06-07", testNow.Add(time.Hour))
	assert.Empty(t, again.Penalties)
}

func TestApply_NegativeNotRepeatableByDefault(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{absenceDef("gap3", 3, 20)}
	prior := map[string]*UserAchievement{}

	first := tracker.Apply("user-1", rule.Snapshot{MissedDays: 3}, defs, prior, "2026-06-07", testNow)
	assert.Len(t, first.Penalties, 1)
	prior[first.Penalties[0].Row.AchievementID] = first.Penalties[0].Row

	// A brand-new absence window months later: already unlocked, no
	// repeat penalties in the default policy.
	later := tracker.Apply("user-1", rule.Snapshot{MissedDays: 5}, defs, prior, "2026-09-01", testNow.AddDate(0, 3, 0))
	assert.Empty(t, later.Penalties)
}

func TestApply_NegativeRepeatablePenalties(t *testing.T) {
	tracker := NewTracker(true)
	defs := []Definition{absenceDef("gap3", 3, 20)}
	prior := map[string]*UserAchievement{}

	first := tracker.Apply("user-1", rule.Snapshot{MissedDays: 3}, defs, prior, "2026-06-07", testNow)
	assert.Len(t, first.Penalties, 1)
	prior[first.Penalties[0].Row.AchievementID] = first.Penalties[0].Row

	second := tracker.Apply("user-1", rule.Snapshot{MissedDays: 3}, defs, prior, "2026-09-01", testNow.AddDate(0, 3, 0))
	assert.Len(t, second.Penalties, 1)
	assert.Equal(t, "2026-09-01", second.Penalties[0].WindowKey)
}

func TestApply_NegativeNoPenaltyWithoutWindow(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{absenceDef("gap3", 3, 20)}

	// Satisfied condition but no window key (no gap preceding this
	// submission): nothing to penalize.
	result := tracker.Apply("user-1", rule.Snapshot{MissedDays: 3}, defs, map[string]*UserAchievement{}, "", testNow)
	assert.Empty(t, result.Penalties)
}

func TestApply_MixedDefinitions(t *testing.T) {
	tracker := NewTracker(false)
	defs := []Definition{
		milestoneDef("m5", 5),
		milestoneDef("m100", 100),
		absenceDef("gap3", 3, 20),
	}

	stats := rule.Snapshot{TotalEntries: 5, MissedDays: 0}
	result := tracker.Apply("user-1", stats, defs, map[string]*UserAchievement{}, "", testNow)

	assert.Len(t, result.NewlyUnlocked, 1)
	assert.Equal(t, "m5", result.NewlyUnlocked[0].Definition.ID)
	assert.Empty(t, result.Penalties)
	assert.Len(t, result.Updated, 2) // m5 unlocked, m100 progressed
}

func TestByID(t *testing.T) {
	rows := []*UserAchievement{
		{UserID: "user-1", AchievementID: "a"},
		{UserID: "user-1", AchievementID: "b"},
	}
	m := ByID(rows)
	assert.Len(t, m, 2)
	assert.Same(t, rows[0], m["a"])
	assert.Same(t, rows[1], m["b"])
}
