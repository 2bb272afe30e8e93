package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureFlags_CoreEnabledByDefault(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "user-1"}

	assert.True(t, ff.IsEnabled(FeatureGamificationStreaks, ctx))
	assert.True(t, ff.IsEnabled(FeatureGamificationAchievements, ctx))
	assert.True(t, ff.IsEnabled(FeatureRewardsRedemptions, ctx))
	assert.True(t, ff.IsEnabled(FeatureJobsAbsenceSweep, ctx))

	assert.False(t, ff.IsEnabled(FeatureExperimentalInsights, ctx))
	assert.False(t, ff.IsEnabled(FeatureExperimentalWebhooks, ctx))
}

func TestFeatureFlags_UnknownFeatureDisabled(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled("does.not.exist", &FeatureContext{UserID: "user-1"}))
}

func TestFeatureFlags_UserOverrideWins(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "user-1"}

	ff.SetUserOverride("user-1", FeatureGamificationStreaks, false)
	assert.False(t, ff.IsEnabled(FeatureGamificationStreaks, ctx))

	// Other users are unaffected.
	assert.True(t, ff.IsEnabled(FeatureGamificationStreaks, &FeatureContext{UserID: "user-2"}))

	ff.ClearUserOverrides("user-1")
	assert.True(t, ff.IsEnabled(FeatureGamificationStreaks, ctx))
}

func TestFeatureFlags_AdminSeesExperimental(t *testing.T) {
	ff := LoadFeatureFlags()

	admin := &FeatureContext{UserID: "admin-1", IsAdmin: true}
	assert.True(t, ff.IsEnabled(FeatureExperimentalInsights, admin))
}

func TestFeatureFlags_RolloutIsDeterministic(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.NoError(t, ff.SetRolloutPercent(FeatureGamificationChallenges, 50))

	ctx := &FeatureContext{UserID: "user-1"}
	first := ff.IsEnabled(FeatureGamificationChallenges, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureGamificationChallenges, ctx))
	}

	// Boundary values behave as full-off / full-on.
	assert.NoError(t, ff.SetRolloutPercent(FeatureGamificationChallenges, 0))
	assert.False(t, ff.IsEnabled(FeatureGamificationChallenges, ctx))
	assert.NoError(t, ff.SetRolloutPercent(FeatureGamificationChallenges, 100))
	assert.True(t, ff.IsEnabled(FeatureGamificationChallenges, ctx))

	assert.Error(t, ff.SetRolloutPercent(FeatureGamificationChallenges, 150))
	assert.Error(t, ff.SetRolloutPercent("does.not.exist", 10))
}

func TestFeatureFlags_EnableDisable(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "user-1"}

	assert.NoError(t, ff.DisableFeature(FeatureJobsSnapshotRefresh))
	assert.False(t, ff.IsEnabled(FeatureJobsSnapshotRefresh, ctx))

	assert.NoError(t, ff.EnableFeature(FeatureJobsSnapshotRefresh))
	assert.True(t, ff.IsEnabled(FeatureJobsSnapshotRefresh, ctx))

	assert.Error(t, ff.EnableFeature("does.not.exist"))
}

func TestFeatureFlags_EnvironmentOverride(t *testing.T) {
	t.Setenv("FEATURE_GAMIFICATION_CHALLENGES", "false")

	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled(FeatureGamificationChallenges, &FeatureContext{UserID: "user-1"}))
}
