// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/achievement"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/challenge"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/streak"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATS SNAPSHOT QUERY
// Получает сводную статистику пользователя: серии по каждому питомцу,
// уровень с опытом, баланс монет и процент закрытых достижений.
// Это главный мотивационный экран приложения.
// ══════════════════════════════════════════════════════════════════════════════

// GetStatsSnapshotQuery содержит параметры запроса статистики.
type GetStatsSnapshotQuery struct {
	// UserID - идентификатор пользователя.
	UserID string

	// SkipCache - обойти кеш и собрать снимок заново.
	SkipCache bool
}

// Validate проверяет корректность параметров.
func (q *GetStatsSnapshotQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_stats_snapshot: user_id is required")
	}
	return nil
}

// SubjectStatsDTO - статистика одного питомца.
type SubjectStatsDTO struct {
	// SubjectID - идентификатор питомца.
	SubjectID string `json:"subject_id"`

	// Name - имя питомца.
	Name string `json:"name"`

	// CurrentStreak - текущая серия дней.
	CurrentStreak int `json:"current_streak"`

	// LongestStreak - лучшая серия дней.
	LongestStreak int `json:"longest_streak"`

	// TotalEntries - всего записей в журнале.
	TotalEntries int `json:"total_entries"`

	// MissedDays - полных дней без записей с последней записи.
	MissedDays int `json:"missed_days"`
}

// StatsSnapshotDTO - сводная статистика пользователя.
type StatsSnapshotDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Идентификация
	// ─────────────────────────────────────────────────────────────────────────

	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// Уровень и монеты
	// ─────────────────────────────────────────────────────────────────────────

	// Level - текущий уровень.
	Level int `json:"level"`

	// Experience - опыт внутри текущего уровня.
	Experience int `json:"experience"`

	// NextLevelExp - опыт до следующего уровня.
	NextLevelExp int `json:"next_level_exp"`

	// CoinBalance - баланс монет (сумма записей леджера).
	CoinBalance int `json:"coin_balance"`

	// ─────────────────────────────────────────────────────────────────────────
	// Серии
	// ─────────────────────────────────────────────────────────────────────────

	// CurrentStreak - лучшая из текущих серий всех питомцев.
	CurrentStreak int `json:"current_streak"`

	// LongestStreak - лучшая серия за всю историю по всем питомцам.
	LongestStreak int `json:"longest_streak"`

	// Subjects - статистика по каждому питомцу.
	Subjects []SubjectStatsDTO `json:"subjects"`

	// ─────────────────────────────────────────────────────────────────────────
	// Достижения и челленджи
	// ─────────────────────────────────────────────────────────────────────────

	// UnlockedAchievements - разблокировано позитивных достижений.
	UnlockedAchievements int `json:"unlocked_achievements"`

	// TotalAchievements - всего позитивных достижений в справочнике.
	TotalAchievements int `json:"total_achievements"`

	// AchievementCompletionRate - доля закрытых достижений [0..1].
	AchievementCompletionRate float64 `json:"achievement_completion_rate"`

	// CompletedChallenges - выполнено челленджей.
	CompletedChallenges int `json:"completed_challenges"`

	// GeneratedAt - когда снимок собран.
	GeneratedAt time.Time `json:"generated_at"`
}

// SnapshotCache кеширует собранные снимки статистики.
// Кеш - чистая оптимизация: промах или ошибка кеша никогда не ломают запрос.
type SnapshotCache interface {
	// Get возвращает снимок и признак попадания.
	Get(ctx context.Context, userID string) (*StatsSnapshotDTO, bool, error)

	// Set сохраняет снимок.
	Set(ctx context.Context, userID string, snapshot *StatsSnapshotDTO) error

	// Invalidate удаляет снимок пользователя.
	Invalidate(ctx context.Context, userID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetStatsSnapshotHandler обрабатывает GetStatsSnapshotQuery.
type GetStatsSnapshotHandler struct {
	subjects        subject.Repository
	entries         entry.Repository
	achievementDefs achievement.DefinitionRepository
	achievements    achievement.Repository
	challenges      challenge.Repository
	states          rewards.StateRepository
	ledger          *rewards.Ledger
	cache           SnapshotCache
	curve           rewards.LevelCurve
	clock           shared.Clock
}

// NewGetStatsSnapshotHandler создаёт обработчик.
// cache может быть nil - тогда снимок собирается каждый раз.
func NewGetStatsSnapshotHandler(
	subjects subject.Repository,
	entries entry.Repository,
	achievementDefs achievement.DefinitionRepository,
	achievements achievement.Repository,
	challenges challenge.Repository,
	states rewards.StateRepository,
	ledger *rewards.Ledger,
	cache SnapshotCache,
	curve rewards.LevelCurve,
	clock shared.Clock,
) *GetStatsSnapshotHandler {
	if clock == nil {
		clock = shared.SystemClock
	}
	if curve == nil {
		curve = rewards.DefaultLevelCurve(rewards.DefaultBaseXP)
	}
	return &GetStatsSnapshotHandler{
		subjects:        subjects,
		entries:         entries,
		achievementDefs: achievementDefs,
		achievements:    achievements,
		challenges:      challenges,
		states:          states,
		ledger:          ledger,
		cache:           cache,
		curve:           curve,
		clock:           clock,
	}
}

// Handle выполняет запрос статистики.
func (h *GetStatsSnapshotHandler) Handle(ctx context.Context, q GetStatsSnapshotQuery) (*StatsSnapshotDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil && !q.SkipCache {
		if cached, hit, err := h.cache.Get(ctx, userID.String()); err == nil && hit {
			return cached, nil
		}
	}

	snapshot, err := h.build(ctx, userID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, userID.String(), snapshot)
	}

	return snapshot, nil
}

// build собирает снимок из хранилищ.
func (h *GetStatsSnapshotHandler) build(ctx context.Context, userID shared.UserID) (*StatsSnapshotDTO, error) {
	now := h.clock()

	snapshot := &StatsSnapshotDTO{
		UserID:      userID.String(),
		GeneratedAt: now,
	}

	// Серии по питомцам. Агрегированная текущая серия - лучшая из текущих:
	// владельцу нескольких питомцев засчитывается самый дисциплинированный.
	subjects, err := h.subjects.GetByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_stats_snapshot: failed to load subjects: %w", err)
	}

	for _, subj := range subjects {
		loc := subj.Location()

		entries, err := h.entries.ListBySubject(ctx, subj.ID)
		if err != nil {
			return nil, fmt.Errorf("get_stats_snapshot: failed to load entries for %s: %w", subj.ID, err)
		}

		times := make([]time.Time, 0, len(entries))
		for _, e := range entries {
			times = append(times, e.OccurredAt)
		}

		s := streak.Compute(times, now, loc)
		missed := streak.MissedDays(times, now, loc)

		snapshot.Subjects = append(snapshot.Subjects, SubjectStatsDTO{
			SubjectID:     subj.ID.String(),
			Name:          subj.Name,
			CurrentStreak: s.Current,
			LongestStreak: s.Longest,
			TotalEntries:  len(entries),
			MissedDays:    missed,
		})

		if s.Current > snapshot.CurrentStreak {
			snapshot.CurrentStreak = s.Current
		}
		if s.Longest > snapshot.LongestStreak {
			snapshot.LongestStreak = s.Longest
		}
	}

	// Уровень и монеты.
	st, err := h.states.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, rewards.ErrStateNotFound) {
			return nil, fmt.Errorf("get_stats_snapshot: failed to load rewards state: %w", err)
		}
		st = rewards.NewState(userID, h.curve, now)
	}
	snapshot.Level = st.Level.Int()
	snapshot.Experience = int(st.Experience)
	snapshot.NextLevelExp = int(st.NextLevelExp)

	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_stats_snapshot: failed to compute balance: %w", err)
	}
	snapshot.CoinBalance = balance.Int()

	// Достижения: процент считается только по позитивным - негативные
	// "разблокировки" не повод для прогресс-бара.
	defs, err := h.achievementDefs.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_stats_snapshot: failed to load achievement definitions: %w", err)
	}

	negative := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.IsNegative {
			negative[def.ID] = true
			continue
		}
		snapshot.TotalAchievements++
	}

	rows, err := h.achievements.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_stats_snapshot: failed to load user achievements: %w", err)
	}
	for _, row := range rows {
		if row.Unlocked && !negative[row.AchievementID] {
			snapshot.UnlockedAchievements++
		}
	}
	if snapshot.TotalAchievements > 0 {
		snapshot.AchievementCompletionRate = float64(snapshot.UnlockedAchievements) / float64(snapshot.TotalAchievements)
	}

	// Челленджи.
	challengeRows, err := h.challenges.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_stats_snapshot: failed to load user challenges: %w", err)
	}
	for _, row := range challengeRows {
		if row.Completed {
			snapshot.CompletedChallenges++
		}
	}

	return snapshot, nil
}
