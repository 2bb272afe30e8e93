// Package rule содержит вычислитель условий (Rule Evaluator) - общую
// чистую функцию, отображающую (статистика, условие) в прогресс.
// Её используют и достижения, и челленджи: единый диспетчер по закрытому
// набору видов условий делает правила исчерпывающе тестируемыми.
package rule

import (
	"errors"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/streak"
	"github.com/pawlog-hub/pawlog-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONDITION SPEC
// ══════════════════════════════════════════════════════════════════════════════

// Kind представляет вид условия. Набор закрыт: новые виды добавляются
// только вместе с веткой в Evaluate.
type Kind string

const (
	// KindTotalCount - общее количество записей
	// (опционально с фильтром по атрибуту).
	KindTotalCount Kind = "TOTAL_COUNT"

	// KindStreakAtLeast - текущая серия не меньше порога.
	KindStreakAtLeast Kind = "STREAK_AT_LEAST"

	// KindSpecificAttributeCount - количество записей, у которых атрибут
	// равен заданному значению.
	KindSpecificAttributeCount Kind = "SPECIFIC_ATTRIBUTE_COUNT"

	// KindAbsence - нет ни одной записи N полных дней подряд.
	// Используется негативными достижениями.
	KindAbsence Kind = "ABSENCE"
)

// IsValid проверяет, что вид условия известен.
func (k Kind) IsValid() bool {
	switch k {
	case KindTotalCount, KindStreakAtLeast, KindSpecificAttributeCount, KindAbsence:
		return true
	default:
		return false
	}
}

// ConditionSpec описывает условие срабатывания правила.
type ConditionSpec struct {
	// Kind - вид условия.
	Kind Kind

	// Attribute - имя атрибута (для TOTAL_COUNT с фильтром
	// и SPECIFIC_ATTRIBUTE_COUNT).
	Attribute string

	// Match - значение атрибута, которое должно совпасть.
	Match string
}

// Validate проверяет корректность условия.
func (c ConditionSpec) Validate() error {
	if !c.Kind.IsValid() {
		return ErrUnknownKind
	}
	if c.Kind == KindSpecificAttributeCount && (c.Attribute == "" || c.Match == "") {
		return ErrMissingAttribute
	}
	return nil
}

var (
	// ErrUnknownKind - неизвестный вид условия.
	ErrUnknownKind = errors.New("unknown condition kind")

	// ErrMissingAttribute - не задан атрибут для условия по атрибуту.
	ErrMissingAttribute = errors.New("attribute and match are required for attribute conditions")
)

// ══════════════════════════════════════════════════════════════════════════════
// STAT SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - накопленная статистика одного питомца на момент вычисления.
// Снимок неизменяем; Evaluate никогда не мутирует состояние.
type Snapshot struct {
	// TotalEntries - общее количество записей.
	TotalEntries int

	// AttributeCounts - количество записей по значению атрибута:
	// имя атрибута -> значение -> количество.
	AttributeCounts map[string]map[string]int

	// CurrentStreak - текущая серия дней.
	CurrentStreak int

	// LongestStreak - лучшая серия дней.
	LongestStreak int

	// MissedDays - полных дней подряд без записей с последней записи.
	MissedDays int
}

// AttributeCount возвращает количество записей со значением value
// у атрибута name.
func (s Snapshot) AttributeCount(name, value string) int {
	values, ok := s.AttributeCounts[name]
	if !ok {
		return 0
	}
	return values[value]
}

// BuildSnapshot строит снимок статистики по записям журнала.
// Записи могут быть в любом порядке.
func BuildSnapshot(entries []*entry.Entry, now time.Time, loc *time.Location) Snapshot {
	counts := map[string]map[string]int{
		entry.AttrConsistency: {},
		entry.AttrColor:       {},
		entry.AttrLocation:    {},
	}

	times := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		times = append(times, e.OccurredAt)
		for _, attr := range []string{entry.AttrConsistency, entry.AttrColor, entry.AttrLocation} {
			if v := e.AttributeValue(attr); v != "" {
				counts[attr][v]++
			}
		}
	}

	s := streak.Compute(times, now, loc)

	return Snapshot{
		TotalEntries:    len(entries),
		AttributeCounts: counts,
		CurrentStreak:   s.Current,
		LongestStreak:   s.Longest,
		MissedDays:      streak.MissedDays(times, now, loc),
	}
}

// BuildWindowSnapshot строит снимок только по записям, чьи occurred_at
// попадают в окно [from, to] (включительно, по границам дней в loc).
// Используется челленджами: прогресс копится только внутри окна.
func BuildWindowSnapshot(entries []*entry.Entry, from, to, now time.Time, loc *time.Location) Snapshot {
	start := timeutil.StartOfDay(from, loc)
	end := timeutil.EndOfDay(to, loc)

	inWindow := make([]*entry.Entry, 0, len(entries))
	for _, e := range entries {
		if e.OccurredAt.Before(start) || e.OccurredAt.After(end) {
			continue
		}
		inWindow = append(inWindow, e)
	}

	return BuildSnapshot(inWindow, now, loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Result - результат вычисления условия.
type Result struct {
	// NewProgress - новое значение прогресса.
	NewProgress int

	// Satisfied - достигнут ли порог.
	Satisfied bool
}

// Evaluate вычисляет прогресс условия по снимку статистики.
// Функция чистая и детерминированная: одинаковые входы всегда дают
// одинаковый результат. Порог target <= 0 считается недостижимым,
// чтобы пустое определение не разблокировалось мгновенно.
func Evaluate(cond ConditionSpec, stats Snapshot, target int) Result {
	var progress int

	switch cond.Kind {
	case KindTotalCount:
		if cond.Attribute != "" && cond.Match != "" {
			progress = stats.AttributeCount(cond.Attribute, cond.Match)
		} else {
			progress = stats.TotalEntries
		}
	case KindStreakAtLeast:
		progress = stats.CurrentStreak
	case KindSpecificAttributeCount:
		progress = stats.AttributeCount(cond.Attribute, cond.Match)
	case KindAbsence:
		progress = stats.MissedDays
	default:
		return Result{}
	}

	return Result{
		NewProgress: progress,
		Satisfied:   target > 0 && progress >= target,
	}
}
