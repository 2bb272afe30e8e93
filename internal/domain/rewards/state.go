// Package rewards содержит подсистему наград: уровни с опытом и
// монетный леджер. Баланс монет всегда реконструируем как сумма
// записей леджера - это ключевой инвариант согласованности системы.
package rewards

import (
	"math"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// LevelCurve возвращает количество опыта, необходимое для перехода
// с уровня level на следующий. Функция обязана быть чистой,
// детерминированной и строго возрастающей по уровню - это требование
// воспроизводимости при повторном проигрывании событий.
type LevelCurve func(level shared.Level) shared.XP

// DefaultBaseXP - базовый опыт кривой уровней по умолчанию.
const DefaultBaseXP = 100

// DefaultLevelCurve возвращает кривую base * level^1.2 (с округлением
// вниз). Строго возрастает при base >= 1.
func DefaultLevelCurve(base shared.XP) LevelCurve {
	if base < 1 {
		base = DefaultBaseXP
	}
	return func(level shared.Level) shared.XP {
		if level < 1 {
			level = 1
		}
		return shared.XP(math.Floor(float64(base) * math.Pow(float64(level), 1.2)))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER REWARDS STATE
// ══════════════════════════════════════════════════════════════════════════════

// State - агрегированное состояние наград пользователя.
//
// Инварианты:
//   - CoinBalance >= 0 и равен сумме записей леджера пользователя;
//   - Level >= 1;
//   - после применения наград всегда Experience < NextLevelExp
//     (переполнение перетекает в следующий уровень).
type State struct {
	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// CoinBalance - текущий баланс монет.
	CoinBalance shared.Coins

	// Level - текущий уровень.
	Level shared.Level

	// Experience - опыт внутри текущего уровня.
	Experience shared.XP

	// NextLevelExp - опыт, необходимый для следующего уровня.
	NextLevelExp shared.XP

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewState создаёт свежее состояние первого уровня.
func NewState(userID shared.UserID, curve LevelCurve, now time.Time) *State {
	return &State{
		UserID:       userID,
		CoinBalance:  0,
		Level:        1,
		Experience:   0,
		NextLevelExp: curve(1),
		UpdatedAt:    now,
	}
}

// AwardExperience начисляет опыт и применяет переходы уровней.
// Одно большое начисление может дать несколько уровней за вызов:
// цикл продолжается, пока опыта хватает на следующий уровень.
// Возвращает количество полученных уровней.
func (s *State) AwardExperience(amount shared.XP, curve LevelCurve, now time.Time) int {
	if amount <= 0 {
		return 0
	}

	s.Experience = s.Experience.Add(amount)
	levels := 0
	for s.Experience >= s.NextLevelExp {
		s.Experience -= s.NextLevelExp
		s.Level++
		s.NextLevelExp = curve(s.Level)
		levels++
	}
	s.UpdatedAt = now

	return levels
}

// ApplyCredit увеличивает баланс на amount.
func (s *State) ApplyCredit(amount shared.Coins, now time.Time) {
	if amount <= 0 {
		return
	}
	s.CoinBalance += amount
	s.UpdatedAt = now
}

// ApplyDebit уменьшает баланс на amount.
// Возвращает ErrInsufficientFunds, если средств не хватает;
// баланс при этом не меняется.
func (s *State) ApplyDebit(amount shared.Coins, now time.Time) error {
	if amount <= 0 {
		return shared.ErrNegativeValue
	}
	if amount > s.CoinBalance {
		return shared.ErrInsufficientFunds
	}
	s.CoinBalance -= amount
	s.UpdatedAt = now
	return nil
}

// Clone создаёт копию состояния.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
