// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique identifier of an account owner.
type UserID string

// IsValid checks if the user ID is a plausible identifier (non-empty,
// no whitespace). The engine does not mint user IDs - they come from the
// external auth collaborator - so validation is intentionally shallow.
func (u UserID) IsValid() bool {
	s := string(u)
	return len(s) > 0 && len(s) <= 64 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// SubjectID represents a unique identifier of a tracked subject (a pet).
type SubjectID string

// IsValid checks if the subject ID is a plausible identifier.
func (s SubjectID) IsValid() bool {
	str := string(s)
	return len(str) > 0 && len(str) <= 64 && !strings.ContainsAny(str, " \t\n\r")
}

// String returns the string representation.
func (s SubjectID) String() string {
	return string(s)
}

// NewSubjectID creates a new SubjectID with validation.
func NewSubjectID(id string) (SubjectID, error) {
	sid := SubjectID(strings.TrimSpace(id))
	if !sid.IsValid() {
		return "", ErrInvalidSubjectID
	}
	return sid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Reward Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Coins represents an amount of the in-app virtual currency.
type Coins int

// IsValid checks that the amount is non-negative. Balances are never
// negative; signed movements live only in ledger entries.
func (c Coins) IsValid() bool {
	return c >= 0
}

// Int returns the underlying int value.
func (c Coins) Int() int {
	return int(c)
}

// XP represents experience points.
type XP int

// IsValid checks that the XP value is non-negative.
func (x XP) IsValid() bool {
	return x >= 0
}

// Add returns the sum of two XP values.
func (x XP) Add(delta XP) XP {
	return x + delta
}

// Level represents a user's experience level. Levels start at 1.
type Level int

// IsValid checks that the level is at least 1.
func (l Level) IsValid() bool {
	return l >= 1
}

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// ═══════════════════════════════════════════════════════════════════════════
// Clock
// ═══════════════════════════════════════════════════════════════════════════

// Clock returns the current time. Injected into handlers and trackers so
// day-boundary behavior is reproducible in tests.
type Clock func() time.Time

// SystemClock is the production clock (UTC).
func SystemClock() time.Time {
	return time.Now().UTC()
}
