package achievement

import (
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Tracker пересчитывает прогресс пользователя по всем определениям.
// Трекер чистый: он не обращается к хранилищу, а работает со снимком
// статистики и уже загруженными строками прогресса. Результат сохраняет
// вызывающая сторона.
type Tracker struct {
	// repeatablePenalties разрешает негативным достижениям штрафовать
	// за каждое новое окно отсутствия, а не только за первое.
	repeatablePenalties bool
}

// NewTracker создаёт новый трекер достижений.
func NewTracker(repeatablePenalties bool) *Tracker {
	return &Tracker{repeatablePenalties: repeatablePenalties}
}

// Penalty - штраф негативного достижения, который нужно применить.
type Penalty struct {
	// Row - строка прогресса, к которой относится штраф.
	Row *UserAchievement

	// Definition - определение негативного достижения.
	Definition Definition

	// Points - размер штрафа в монетах.
	Points shared.Coins

	// WindowKey - ключ окна отсутствия (первый пропущенный день).
	WindowKey string
}

// ApplyResult - результат пересчёта достижений.
type ApplyResult struct {
	// Updated - строки, чьё состояние изменилось (нужно сохранить).
	Updated []*UserAchievement

	// NewlyUnlocked - строки, разблокированные этим пересчётом,
	// вместе с определениями для начисления наград.
	NewlyUnlocked []Unlocked

	// Penalties - штрафы к применению.
	Penalties []Penalty
}

// Unlocked - пара (строка прогресса, определение) для новой разблокировки.
type Unlocked struct {
	Row        *UserAchievement
	Definition Definition
}

// Apply пересчитывает прогресс пользователя по всем определениям
// на основе обновлённого снимка статистики.
//
// Гарантии:
//   - прогресс монотонно неубывающий; после разблокировки заморожен;
//   - разблокировка идемпотентна: повторный пересчёт с тем же снимком
//     не даёт новых разблокировок;
//   - штраф негативного достижения применяется не более одного раза
//     на окно отсутствия (absenceWindowKey); без repeatablePenalties -
//     не более одного раза за всю историю.
//
// absenceWindowKey - ключ текущего окна отсутствия (первый пропущенный
// день в поясе питомца); пустая строка, если пропусков нет.
func (t *Tracker) Apply(
	userID shared.UserID,
	stats rule.Snapshot,
	definitions []Definition,
	prior map[string]*UserAchievement,
	absenceWindowKey string,
	now time.Time,
) ApplyResult {
	var result ApplyResult

	for _, def := range definitions {
		row, ok := prior[def.ID]
		if !ok {
			// Ленивое создание при первом релевантном пересчёте.
			row = NewUserAchievement(userID, def.ID, now)
		}
		created := !ok

		eval := rule.Evaluate(def.Condition, stats, def.TriggerValue)

		if def.IsNegative {
			if p, changed := t.applyNegative(row, def, eval, absenceWindowKey, now); changed {
				result.Updated = append(result.Updated, row)
				if p != nil {
					result.Penalties = append(result.Penalties, *p)
				}
			} else if created && eval.NewProgress > 0 {
				result.Updated = append(result.Updated, row)
			}
			continue
		}

		changed := row.advanceProgress(def.CapProgress(eval.NewProgress), now)

		if eval.Satisfied && row.unlock(now) {
			changed = true
			result.NewlyUnlocked = append(result.NewlyUnlocked, Unlocked{Row: row, Definition: def})
		}

		if changed || (created && row.Progress > 0) {
			result.Updated = append(result.Updated, row)
		}
	}

	return result
}

// applyNegative обрабатывает негативное достижение.
// Возвращает штраф (или nil) и признак изменения строки.
func (t *Tracker) applyNegative(
	row *UserAchievement,
	def Definition,
	eval rule.Result,
	windowKey string,
	now time.Time,
) (*Penalty, bool) {
	if !eval.Satisfied || windowKey == "" {
		return nil, false
	}

	// Внутри одного окна отсутствия штраф не повторяется: условие
	// должно быть покинуто и достигнуто заново.
	if row.LastPenaltyWindow == windowKey {
		return nil, false
	}

	if row.Unlocked && !t.repeatablePenalties {
		return nil, false
	}

	row.unlock(now)
	if eval.NewProgress > row.Progress {
		// Прогресс негативного достижения отражает длину пропуска.
		row.Progress = def.CapProgress(eval.NewProgress)
	}
	row.LastPenaltyWindow = windowKey
	row.UpdatedAt = now

	return &Penalty{
		Row:        row,
		Definition: def,
		Points:     def.PenaltyPoints,
		WindowKey:  windowKey,
	}, true
}
