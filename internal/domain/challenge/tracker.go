package challenge

import (
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Tracker пересчитывает прогресс пользователя по активным челленджам.
// Как и трекер достижений, он чистый: статистику окна поставляет
// вызывающая сторона через statsFor.
type Tracker struct{}

// NewTracker создаёт новый трекер челленджей.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Completed - пара (строка прогресса, определение) для нового выполнения.
type Completed struct {
	Row        *UserChallenge
	Definition Definition
}

// ApplyResult - результат пересчёта челленджей.
type ApplyResult struct {
	// Updated - строки, чьё состояние изменилось (нужно сохранить).
	Updated []*UserChallenge

	// NewlyCompleted - челленджи, выполненные этим пересчётом.
	NewlyCompleted []Completed

	// Skipped - идентификаторы челленджей, для которых событие оказалось
	// вне окна (StaleEvent для этого трекера; фиксируется для аудита).
	Skipped []string
}

// Apply пересчитывает прогресс по всем переданным определениям для
// события с моментом occurredAt.
//
// Определения, чьё окно не содержит occurredAt, пропускаются: событие
// не считается задним числом и не идёт в счёт будущих челленджей.
// statsFor возвращает снимок статистики, построенный только по записям
// внутри окна определения.
func (t *Tracker) Apply(
	userID shared.UserID,
	occurredAt time.Time,
	definitions []Definition,
	prior map[string]*UserChallenge,
	statsFor func(Definition) rule.Snapshot,
	loc *time.Location,
	now time.Time,
) ApplyResult {
	var result ApplyResult

	for _, def := range definitions {
		if !def.Contains(occurredAt, loc) {
			result.Skipped = append(result.Skipped, def.ID)
			continue
		}

		row, ok := prior[def.ID]
		if !ok {
			row = NewUserChallenge(userID, def.ID, now)
		}

		if row.Completed {
			continue
		}

		eval := rule.Evaluate(def.Condition, statsFor(def), def.ConditionValue)

		changed := row.advanceProgress(eval.NewProgress, now)

		if eval.Satisfied && row.complete(now) {
			changed = true
			result.NewlyCompleted = append(result.NewlyCompleted, Completed{Row: row, Definition: def})
		}

		if changed {
			result.Updated = append(result.Updated, row)
		}
	}

	return result
}
