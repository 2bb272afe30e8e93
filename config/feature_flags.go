package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollout.
// Gamification mechanics are the kind of thing that gets tuned and A/B
// tested constantly, so every mechanic hangs behind a flag.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// === Gamification Features ===
	FeatureGamificationStreaks      = "gamification.streaks"      // Daily streaks
	FeatureGamificationAchievements = "gamification.achievements" // Badges/achievements
	FeatureGamificationPenalties    = "gamification.penalties"    // Negative achievements
	FeatureGamificationChallenges   = "gamification.challenges"   // Time-boxed challenges
	FeatureGamificationLeveling     = "gamification.leveling"     // XP and levels

	// === Rewards Features ===
	FeatureRewardsRedemptions = "rewards.redemptions" // Spend coins on rewards

	// === Background Jobs ===
	FeatureJobsAbsenceSweep       = "jobs.absence_sweep"       // Penalize users who never return
	FeatureJobsChallengeFinalize  = "jobs.challenge_finalize"  // Settle closed challenge windows
	FeatureJobsSnapshotRefresh    = "jobs.snapshot_refresh"    // Keep stats cache warm

	// === Experimental Features ===
	FeatureExperimentalInsights = "experimental.insights" // Health trend analysis
	FeatureExperimentalWebhooks = "experimental.webhooks" // Real-time webhook updates
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Core gamification - enabled by default
	ff.features[FeatureGamificationStreaks] = &Feature{
		Name:           FeatureGamificationStreaks,
		Description:    "Track daily logging streaks",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureGamificationAchievements] = &Feature{
		Name:           FeatureGamificationAchievements,
		Description:    "Unlock achievements",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureGamificationPenalties] = &Feature{
		Name:           FeatureGamificationPenalties,
		Description:    "Penalize logging gaps via negative achievements",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureGamificationChallenges] = &Feature{
		Name:           FeatureGamificationChallenges,
		Description:    "Time-boxed challenges with point rewards",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureGamificationLeveling] = &Feature{
		Name:           FeatureGamificationLeveling,
		Description:    "XP accumulation and level progression",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Rewards
	ff.features[FeatureRewardsRedemptions] = &Feature{
		Name:           FeatureRewardsRedemptions,
		Description:    "Spend coins on reward redemptions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Background jobs
	ff.features[FeatureJobsAbsenceSweep] = &Feature{
		Name:           FeatureJobsAbsenceSweep,
		Description:    "Scheduled sweep penalizing users who stopped logging",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureJobsChallengeFinalize] = &Feature{
		Name:           FeatureJobsChallengeFinalize,
		Description:    "Scheduled settlement of closed challenge windows",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureJobsSnapshotRefresh] = &Feature{
		Name:           FeatureJobsSnapshotRefresh,
		Description:    "Scheduled refresh of cached stats snapshots",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalInsights] = &Feature{
		Name:           FeatureExperimentalInsights,
		Description:    "Health trend analysis over logged attributes",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalWebhooks] = &Feature{
		Name:           FeatureExperimentalWebhooks,
		Description:    "Real-time webhook updates",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_GAMIFICATION_PENALTIES=false
// Example: FEATURE_EXPERIMENTAL_INSIGHTS=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "gamification.streaks" -> "FEATURE_GAMIFICATION_STREAKS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin users get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID string, featureName string, percent int) bool {
	// Create a consistent hash for this user+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for a user.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	if ctx == nil || !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ""
	}

	if len(feature.Variants) == 0 {
		return ""
	}

	// Use consistent hashing to assign variant
	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.UserID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID string, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// GamificationEnabled checks if any gamification mechanic is enabled.
func (ff *FeatureFlags) GamificationEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureGamificationStreaks, ctx) ||
		ff.IsEnabled(FeatureGamificationAchievements, ctx) ||
		ff.IsEnabled(FeatureGamificationChallenges, ctx) ||
		ff.IsEnabled(FeatureGamificationLeveling, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
