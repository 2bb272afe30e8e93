// Package challenge содержит доменную модель челленджей - временных
// заданий с окном действия. Прогресс копится только по записям, чьи
// occurred_at попадают в окно; завершение монотонно и необратимо.
package challenge

import (
	"errors"
	"strings"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS (справочные данные)
// ══════════════════════════════════════════════════════════════════════════════

// Type представляет тип челленджа для отображения и группировки.
type Type string

const (
	// TypeDaily - ежедневный челлендж.
	TypeDaily Type = "daily"
	// TypeWeekly - недельный челлендж.
	TypeWeekly Type = "weekly"
	// TypeSeasonal - сезонный челлендж.
	TypeSeasonal Type = "seasonal"
)

// IsValid проверяет, что тип корректен.
func (t Type) IsValid() bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeSeasonal:
		return true
	default:
		return false
	}
}

// Definition - неизменяемое определение челленджа.
type Definition struct {
	// ID - идентификатор определения.
	ID string

	// Title - название.
	Title string

	// StartDate - первый день окна (включительно).
	StartDate time.Time

	// EndDate - последний день окна (включительно).
	EndDate time.Time

	// Type - тип челленджа.
	Type Type

	// Condition - условие выполнения.
	Condition rule.ConditionSpec

	// ConditionValue - порог условия.
	ConditionValue int

	// Points - награда в монетах и опыте за выполнение.
	Points int
}

// Validate проверяет корректность определения.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrInvalidDefinition
	}
	if strings.TrimSpace(d.Title) == "" {
		return ErrInvalidDefinition
	}
	if d.StartDate.IsZero() || d.EndDate.IsZero() || d.EndDate.Before(d.StartDate) {
		return ErrInvalidWindow
	}
	if !d.Type.IsValid() {
		return ErrInvalidDefinition
	}
	if err := d.Condition.Validate(); err != nil {
		return err
	}
	if d.ConditionValue <= 0 || d.Points <= 0 {
		return ErrInvalidDefinition
	}
	return nil
}

// Contains проверяет, попадает ли момент t в окно челленджа
// (по границам календарных дней в поясе loc).
func (d Definition) Contains(t time.Time, loc *time.Location) bool {
	start := timeutil.StartOfDay(d.StartDate, loc)
	end := timeutil.EndOfDay(d.EndDate, loc)
	return !t.Before(start) && !t.After(end)
}

// Expired проверяет, закрылось ли окно челленджа к моменту now.
func (d Definition) Expired(now time.Time, loc *time.Location) bool {
	return now.After(timeutil.EndOfDay(d.EndDate, loc))
}

// AcceptsAt проверяет, принимает ли челлендж новые события в момент now.
// Возвращает shared.ErrStaleEvent, если окно уже закрылось: событие,
// датированное задним числом внутрь закрытого окна, не засчитывается.
func (d Definition) AcceptsAt(now time.Time, loc *time.Location) error {
	if d.Expired(now, loc) {
		return shared.ErrStaleEvent
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidDefinition - некорректное определение челленджа.
	ErrInvalidDefinition = errors.New("invalid challenge definition")

	// ErrInvalidWindow - некорректное окно (start_date > end_date).
	ErrInvalidWindow = errors.New("invalid challenge window")

	// ErrDefinitionNotFound - определение не найдено.
	ErrDefinitionNotFound = errors.New("challenge definition not found")
)

// ══════════════════════════════════════════════════════════════════════════════
// USER CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// UserChallenge - прогресс пользователя по одному челленджу.
// Создаётся лениво при первом событии внутри окна и никогда не удаляется.
type UserChallenge struct {
	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// ChallengeID - идентификатор определения.
	ChallengeID string

	// Progress - текущий прогресс (монотонно неубывающий).
	Progress int

	// Completed - выполнен ли челлендж. Переход true -> false невозможен.
	Completed bool

	// CompletedAt - когда выполнен.
	CompletedAt *time.Time

	// CreatedAt - время создания строки.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewUserChallenge создаёт новую строку прогресса с нулевым прогрессом.
func NewUserChallenge(userID shared.UserID, challengeID string, now time.Time) *UserChallenge {
	return &UserChallenge{
		UserID:      userID,
		ChallengeID: challengeID,
		Progress:    0,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// advanceProgress поднимает прогресс до значения p, если оно больше
// текущего. После выполнения прогресс заморожен.
func (uc *UserChallenge) advanceProgress(p int, now time.Time) bool {
	if uc.Completed {
		return false
	}
	if p <= uc.Progress {
		return false
	}
	uc.Progress = p
	uc.UpdatedAt = now
	return true
}

// complete переводит челлендж в выполненное состояние (write-once).
func (uc *UserChallenge) complete(now time.Time) bool {
	if uc.Completed {
		return false
	}
	uc.Completed = true
	at := now
	uc.CompletedAt = &at
	uc.UpdatedAt = now
	return true
}

// Clone создаёт копию строки прогресса.
func (uc *UserChallenge) Clone() *UserChallenge {
	if uc == nil {
		return nil
	}
	clone := *uc
	if uc.CompletedAt != nil {
		at := *uc.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}
