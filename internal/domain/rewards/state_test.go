package rewards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

var stateNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func TestDefaultLevelCurve_StrictlyIncreasing(t *testing.T) {
	curve := DefaultLevelCurve(100)

	assert.EqualValues(t, 100, curve(1))

	prev := curve(1)
	for level := shared.Level(2); level <= 50; level++ {
		next := curve(level)
		assert.Greater(t, int(next), int(prev), "curve must grow at level %d", level)
		prev = next
	}
}

func TestDefaultLevelCurve_InvalidBaseFallsBack(t *testing.T) {
	curve := DefaultLevelCurve(0)
	assert.EqualValues(t, DefaultBaseXP, curve(1))
}

func TestNewState(t *testing.T) {
	curve := DefaultLevelCurve(100)
	st := NewState("user-1", curve, stateNow)

	assert.EqualValues(t, 1, st.Level)
	assert.EqualValues(t, 0, st.Experience)
	assert.EqualValues(t, 0, st.CoinBalance)
	assert.Equal(t, curve(1), st.NextLevelExp)
}

func TestAwardExperience_SingleLevel(t *testing.T) {
	curve := DefaultLevelCurve(100)
	st := NewState("user-1", curve, stateNow)

	levels := st.AwardExperience(100, curve, stateNow)

	assert.Equal(t, 1, levels)
	assert.EqualValues(t, 2, st.Level)
	assert.EqualValues(t, 0, st.Experience)
	assert.Equal(t, curve(2), st.NextLevelExp)
}

func TestAwardExperience_MultiLevelRollover(t *testing.T) {
	curve := DefaultLevelCurve(100)
	st := NewState("user-1", curve, stateNow)

	// 100 (level 1->2) + 229 (level 2->3) = 329; 400 leaves 71 inside level 3.
	needed := curve(1) + curve(2)
	levels := st.AwardExperience(needed+71, curve, stateNow)

	assert.Equal(t, 2, levels)
	assert.EqualValues(t, 3, st.Level)
	assert.EqualValues(t, 71, st.Experience)

	// Invariant: experience always below the next threshold.
	assert.Less(t, int(st.Experience), int(st.NextLevelExp))
}

func TestAwardExperience_NoThresholdNoLevel(t *testing.T) {
	curve := DefaultLevelCurve(100)
	st := NewState("user-1", curve, stateNow)

	levels := st.AwardExperience(99, curve, stateNow)
	assert.Equal(t, 0, levels)
	assert.EqualValues(t, 1, st.Level)
	assert.EqualValues(t, 99, st.Experience)
}

func TestAwardExperience_NonPositiveIgnored(t *testing.T) {
	curve := DefaultLevelCurve(100)
	st := NewState("user-1", curve, stateNow)

	assert.Equal(t, 0, st.AwardExperience(0, curve, stateNow))
	assert.Equal(t, 0, st.AwardExperience(-10, curve, stateNow))
	assert.EqualValues(t, 0, st.Experience)
}

func TestApplyDebit(t *testing.T) {
	curve := DefaultLevelCurve(100)
	st := NewState("user-1", curve, stateNow)
	st.ApplyCredit(50, stateNow)

	err := st.ApplyDebit(60, stateNow)
	assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
	assert.EqualValues(t, 50, st.CoinBalance)

	assert.NoError(t, st.ApplyDebit(50, stateNow))
	assert.EqualValues(t, 0, st.CoinBalance)
}
