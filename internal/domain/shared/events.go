// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Entry log events
	EventEntryLogged EventType = "entry.logged"

	// Achievement events
	EventAchievementUnlocked  EventType = "achievement.unlocked"
	EventAchievementPenalized EventType = "achievement.penalized"

	// Challenge events
	EventChallengeCompleted EventType = "challenge.completed"

	// Rewards events
	EventLevelUp            EventType = "rewards.level_up"
	EventCoinsCredited      EventType = "rewards.coins_credited"
	EventCoinsDebited       EventType = "rewards.coins_debited"
	EventRedemptionDeclined EventType = "rewards.redemption_declined"

	// Streak events
	EventStreakUpdated EventType = "streak.updated"
	EventStreakBroken  EventType = "streak.broken"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For this engine the aggregate is always the user's progress state,
	// so the aggregate ID is the user ID.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Concrete Events
// ═══════════════════════════════════════════════════════════════════════════

// EntryLoggedEvent is emitted when a log entry is appended for a subject.
type EntryLoggedEvent struct {
	BaseEvent
	SubjectID  string    `json:"subject_id"`
	EntryID    string    `json:"entry_id"`
	LoggedFor  time.Time `json:"logged_for"`
	DayStreak  int       `json:"day_streak"`
}

// Payload implements Event interface.
func (e EntryLoggedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id": e.SubjectID,
		"entry_id":   e.EntryID,
		"logged_for": e.LoggedFor,
		"day_streak": e.DayStreak,
	}
}

// AchievementUnlockedEvent is emitted when an achievement transitions to unlocked.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	CoinReward    int    `json:"coin_reward"`
	XPBonus       int    `json:"xp_bonus"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"title":          e.Title,
		"coin_reward":    e.CoinReward,
		"xp_bonus":       e.XPBonus,
	}
}

// AchievementPenalizedEvent is emitted when a negative achievement applies
// its penalty.
type AchievementPenalizedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	PenaltyCoins  int    `json:"penalty_coins"`
	WindowKey     string `json:"window_key"`
}

// Payload implements Event interface.
func (e AchievementPenalizedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"penalty_coins":  e.PenaltyCoins,
		"window_key":     e.WindowKey,
	}
}

// ChallengeCompletedEvent is emitted when a challenge is completed.
type ChallengeCompletedEvent struct {
	BaseEvent
	ChallengeID string `json:"challenge_id"`
	Points      int    `json:"points"`
}

// Payload implements Event interface.
func (e ChallengeCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id": e.ChallengeID,
		"points":       e.Points,
	}
}

// LevelUpEvent is emitted when a user gains one or more levels.
type LevelUpEvent struct {
	BaseEvent
	OldLevel int `json:"old_level"`
	NewLevel int `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// CoinsCreditedEvent is emitted when coins are credited to a user.
type CoinsCreditedEvent struct {
	BaseEvent
	Amount     int    `json:"amount"`
	Reason     string `json:"reason"`
	SourceID   string `json:"source_id"`
	NewBalance int    `json:"new_balance"`
}

// Payload implements Event interface.
func (e CoinsCreditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":      e.Amount,
		"reason":      e.Reason,
		"source_id":   e.SourceID,
		"new_balance": e.NewBalance,
	}
}

// CoinsDebitedEvent is emitted when coins are debited from a user.
type CoinsDebitedEvent struct {
	BaseEvent
	Amount     int    `json:"amount"`
	Reason     string `json:"reason"`
	SourceID   string `json:"source_id"`
	NewBalance int    `json:"new_balance"`
}

// Payload implements Event interface.
func (e CoinsDebitedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":      e.Amount,
		"reason":      e.Reason,
		"source_id":   e.SourceID,
		"new_balance": e.NewBalance,
	}
}

// RedemptionDeclinedEvent is emitted when a redemption is refused because
// the cost exceeds the user's balance.
type RedemptionDeclinedEvent struct {
	BaseEvent
	RedemptionID string `json:"redemption_id"`
	Cost         int    `json:"cost"`
	Balance      int    `json:"balance"`
}

// Payload implements Event interface.
func (e RedemptionDeclinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"redemption_id": e.RedemptionID,
		"cost":          e.Cost,
		"balance":       e.Balance,
	}
}

// StreakUpdatedEvent is emitted when a subject's current streak changes.
type StreakUpdatedEvent struct {
	BaseEvent
	SubjectID     string `json:"subject_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id":     e.SubjectID,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// StreakBrokenEvent is emitted when a fully elapsed day without entries
// breaks a subject's streak.
type StreakBrokenEvent struct {
	BaseEvent
	SubjectID      string `json:"subject_id"`
	PreviousStreak int    `json:"previous_streak"`
	MissedDays     int    `json:"missed_days"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id":      e.SubjectID,
		"previous_streak": e.PreviousStreak,
		"missed_days":     e.MissedDays,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher publishes domain events. Implementations must not be
// relied upon for state consistency: all state changes are committed
// before events are published, and subscribers only drive secondary
// concerns (cache invalidation, logging).
type EventPublisher interface {
	// Publish publishes events to all interested subscribers.
	Publish(ctx context.Context, events ...Event) error
}

// EventSubscriber registers handlers for domain events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NoopPublisher is an EventPublisher that discards all events.
// Useful in tests and in tools that do not need the bus.
type NoopPublisher struct{}

// Publish implements EventPublisher.
func (NoopPublisher) Publish(_ context.Context, _ ...Event) error {
	return nil
}
