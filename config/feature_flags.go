package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts for the
// real-time layer. Supports percentage rollout, per-course targeting,
// and user overrides for debugging.
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

	// Course targeting. Empty means all courses.
	TargetCourses []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID string // platform user ID

	CourseID     string // course the user is acting in
	IsInstructor bool   // instructors get all features
}

// Predefined feature flag names.
const (
	// === Real-time delivery features ===
	FeatureRealtimeTyping    = "realtime.typing"     // Typing indicators in discussions
	FeatureRealtimePresence  = "realtime.presence"   // Live lesson roster
	FeatureRealtimeQuestions = "realtime.questions"  // Audience questions in lessons
	FeatureRealtimePolls     = "realtime.polls"      // Live poll relay
	FeatureRealtimeBridge    = "realtime.bridge"     // Cross-instance broadcast bridge

	// === Notification features ===
	FeatureNotifyEmailCopies   = "notify.email_copies"   // Email copies of notifications
	FeatureNotifyBacklogReplay = "notify.backlog_replay" // Unread replay on connect
	FeatureNotifyUnreadCounts  = "notify.unread_counts"  // Unread count pushes

	// === Discussion features ===
	FeatureChatInstructorBadge = "chat.instructor_badge" // Tag instructor replies
	FeatureChatThreading       = "chat.threading"        // Parent reply threading

	// === Experimental features ===
	FeatureExperimentalReadReceipts = "experimental.read_receipts" // Per-message read receipts
	FeatureExperimentalReactions    = "experimental.reactions"     // Message reactions
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
	// Real-time features - core of the product, enabled by default
	ff.features[FeatureRealtimeTyping] = &Feature{
		Name:           FeatureRealtimeTyping,
		Description:    "Typing indicators in discussion chats",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRealtimePresence] = &Feature{
		Name:           FeatureRealtimePresence,
		Description:    "Live lesson presence roster",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRealtimeQuestions] = &Feature{
		Name:           FeatureRealtimeQuestions,
		Description:    "Audience questions during live lessons",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRealtimePolls] = &Feature{
		Name:           FeatureRealtimePolls,
		Description:    "Live poll response relay",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRealtimeBridge] = &Feature{
		Name:           FeatureRealtimeBridge,
		Description:    "Cross-instance broadcast bridge over Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Notification features
	ff.features[FeatureNotifyEmailCopies] = &Feature{
		Name:           FeatureNotifyEmailCopies,
		Description:    "Email copies of important notifications",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyBacklogReplay] = &Feature{
		Name:           FeatureNotifyBacklogReplay,
		Description:    "Replay unread notifications on connect",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyUnreadCounts] = &Feature{
		Name:           FeatureNotifyUnreadCounts,
		Description:    "Push fresh unread counts after reads",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Discussion features
	ff.features[FeatureChatInstructorBadge] = &Feature{
		Name:           FeatureChatInstructorBadge,
		Description:    "Badge replies authored by instructors",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureChatThreading] = &Feature{
		Name:           FeatureChatThreading,
		Description:    "Threaded replies in discussions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalReadReceipts] = &Feature{
		Name:           FeatureExperimentalReadReceipts,
		Description:    "Per-message read receipts",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalReactions] = &Feature{
		Name:           FeatureExperimentalReactions,
		Description:    "Emoji reactions on replies",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_REALTIME_TYPING=true
// Example: FEATURE_EXPERIMENTAL_REACTIONS=50 (50% rollout)
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
// "realtime.typing" -> "FEATURE_REALTIME_TYPING"
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

	// Instructors get all features
	if ctx != nil && ctx.IsInstructor {
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

	// Check course targeting
	if len(feature.TargetCourses) > 0 && ctx != nil && ctx.CourseID != "" {
		courseMatch := false
		for _, c := range feature.TargetCourses {
			if c == ctx.CourseID {
				courseMatch = true
				break
			}
		}
		if !courseMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID, featureName string, percent int) bool {
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
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.IsEnabled(featureName, ctx) {
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
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
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
