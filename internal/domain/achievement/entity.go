// Package achievement содержит доменную модель достижений:
// неизменяемые определения (справочные данные) и прогресс пользователя
// по ним. Разблокировка монотонна и необратима.
package achievement

import (
	"errors"
	"strings"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS (справочные данные)
// ══════════════════════════════════════════════════════════════════════════════

// Type представляет тип достижения для отображения и группировки.
type Type string

const (
	// TypeMilestone - достижение за накопленное количество записей.
	TypeMilestone Type = "milestone"
	// TypeStreak - достижение за серию дней.
	TypeStreak Type = "streak"
	// TypeAttribute - достижение за записи с определённым атрибутом.
	TypeAttribute Type = "attribute"
	// TypeAbsence - негативное достижение за пропуски.
	TypeAbsence Type = "absence"
)

// IsValid проверяет, что тип корректен.
func (t Type) IsValid() bool {
	switch t {
	case TypeMilestone, TypeStreak, TypeAttribute, TypeAbsence:
		return true
	default:
		return false
	}
}

// Definition - неизменяемое определение достижения.
// Загружается из внешнего справочника и никогда не меняется движком.
type Definition struct {
	// ID - идентификатор определения.
	ID string

	// Title - название.
	Title string

	// Description - описание.
	Description string

	// Type - тип достижения.
	Type Type

	// IsNegative - негативное достижение (штраф вместо награды).
	IsNegative bool

	// PenaltyPoints - размер штрафа в монетах (для негативных).
	PenaltyPoints shared.Coins

	// MaxProgress - видимый потолок прогресса (0 - без потолка).
	// Ограничивает только отображаемое значение, не условие.
	MaxProgress int

	// Condition - условие срабатывания.
	Condition rule.ConditionSpec

	// TriggerValue - порог условия.
	TriggerValue int

	// CoinReward - награда в монетах при разблокировке.
	CoinReward shared.Coins

	// XPBonus - бонус опыта при разблокировке.
	XPBonus shared.XP
}

// Validate проверяет корректность определения.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrInvalidDefinition
	}
	if strings.TrimSpace(d.Title) == "" {
		return ErrInvalidDefinition
	}
	if !d.Type.IsValid() {
		return ErrInvalidDefinition
	}
	if err := d.Condition.Validate(); err != nil {
		return err
	}
	if d.TriggerValue <= 0 {
		return ErrInvalidDefinition
	}
	if d.IsNegative && d.PenaltyPoints <= 0 {
		return ErrInvalidDefinition
	}
	return nil
}

// CapProgress ограничивает отображаемый прогресс потолком MaxProgress.
func (d Definition) CapProgress(progress int) int {
	if d.MaxProgress > 0 && progress > d.MaxProgress {
		return d.MaxProgress
	}
	return progress
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidDefinition - некорректное определение достижения.
	ErrInvalidDefinition = errors.New("invalid achievement definition")

	// ErrDefinitionNotFound - определение не найдено.
	ErrDefinitionNotFound = errors.New("achievement definition not found")

	// ErrUserAchievementNotFound - прогресс пользователя не найден.
	ErrUserAchievementNotFound = errors.New("user achievement not found")
)

// ══════════════════════════════════════════════════════════════════════════════
// USER ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// UserAchievement - прогресс пользователя по одному определению.
// Создаётся лениво при первом релевантном событии и никогда не удаляется.
type UserAchievement struct {
	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// AchievementID - идентификатор определения.
	AchievementID string

	// Progress - текущий прогресс (монотонно неубывающий).
	Progress int

	// Unlocked - разблокировано ли достижение.
	// Для негативных достижений означает "штраф применён".
	// Переход true -> false невозможен.
	Unlocked bool

	// UnlockedAt - когда разблокировано.
	UnlockedAt *time.Time

	// LastPenaltyWindow - ключ окна отсутствия, за которое последний раз
	// применялся штраф (только для негативных достижений). Защищает от
	// повторного штрафа внутри одного окна.
	LastPenaltyWindow string

	// CreatedAt - время создания строки.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewUserAchievement создаёт новую строку прогресса с нулевым прогрессом.
func NewUserAchievement(userID shared.UserID, achievementID string, now time.Time) *UserAchievement {
	return &UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		Progress:      0,
		Unlocked:      false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// advanceProgress поднимает прогресс до значения p, если оно больше
// текущего. После разблокировки прогресс заморожен.
// Возвращает true, если значение изменилось.
func (ua *UserAchievement) advanceProgress(p int, now time.Time) bool {
	if ua.Unlocked {
		return false
	}
	if p <= ua.Progress {
		return false
	}
	ua.Progress = p
	ua.UpdatedAt = now
	return true
}

// unlock переводит достижение в разблокированное состояние.
// Операция write-once: повторный вызов ничего не делает.
func (ua *UserAchievement) unlock(now time.Time) bool {
	if ua.Unlocked {
		return false
	}
	ua.Unlocked = true
	at := now
	ua.UnlockedAt = &at
	ua.UpdatedAt = now
	return true
}

// Clone создаёт копию строки прогресса.
func (ua *UserAchievement) Clone() *UserAchievement {
	if ua == nil {
		return nil
	}
	clone := *ua
	if ua.UnlockedAt != nil {
		at := *ua.UnlockedAt
		clone.UnlockedAt = &at
	}
	return &clone
}
