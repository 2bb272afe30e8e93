// Package streak содержит вычисление серий активных дней (Streak Tracker).
// Серия - это количество подряд идущих календарных дней, в каждом из
// которых есть хотя бы одна запись журнала. Все вычисления чистые и
// детерминированные: "сегодня" передаётся явно.
package streak

import (
	"sort"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/pkg/timeutil"
)

// Streak представляет текущую и лучшую серию активных дней.
type Streak struct {
	// Current - текущая серия дней.
	Current int

	// Longest - лучшая серия дней за всю историю.
	Longest int
}

// Compute вычисляет серию по временам записей одного питомца.
//
// Правила:
//   - день считается активным, если в нём есть хотя бы одна запись
//     (несколько записей в один день считаются один раз);
//   - текущая серия - это непрерывный пробег дней, заканчивающийся
//     сегодня или вчера: день без записей ломает серию только после
//     того, как он полностью прошёл;
//   - границы дня берутся в часовом поясе питомца.
//
// Пустая история даёт {0, 0}.
func Compute(times []time.Time, now time.Time, loc *time.Location) Streak {
	if len(times) == 0 {
		return Streak{}
	}

	days := uniqueDays(times, loc)

	longest := 0
	run := 1
	for i := 1; i < len(days); i++ {
		if timeutil.DaysBetween(days[i-1], days[i], loc) == 1 {
			run++
		} else {
			if run > longest {
				longest = run
			}
			run = 1
		}
	}
	if run > longest {
		longest = run
	}

	// Текущая серия: пробег, заканчивающийся сегодня или вчера.
	current := 0
	last := days[len(days)-1]
	gapToNow := timeutil.DaysBetween(last, now, loc)
	if gapToNow == 0 || gapToNow == 1 {
		current = 1
		for i := len(days) - 1; i > 0; i-- {
			if timeutil.DaysBetween(days[i-1], days[i], loc) == 1 {
				current++
			} else {
				break
			}
		}
	}

	return Streak{Current: current, Longest: longest}
}

// MissedDays возвращает количество полностью прошедших дней без записей
// с момента последней записи. Используется правилами типа ABSENCE.
// Пустая история трактуется как отсутствие пропусков: штрафовать
// питомца, которого ещё не начали отслеживать, нельзя.
func MissedDays(times []time.Time, now time.Time, loc *time.Location) int {
	if len(times) == 0 {
		return 0
	}

	last := times[0]
	for _, t := range times[1:] {
		if t.After(last) {
			last = t
		}
	}

	return timeutil.ElapsedDaysSince(last, now, loc)
}

// uniqueDays возвращает отсортированные уникальные начала дней.
func uniqueDays(times []time.Time, loc *time.Location) []time.Time {
	seen := make(map[string]time.Time, len(times))
	for _, t := range times {
		key := timeutil.DayKey(t, loc)
		if _, ok := seen[key]; !ok {
			seen[key] = timeutil.StartOfDay(t, loc)
		}
	}

	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Before(days[j])
	})

	return days
}
