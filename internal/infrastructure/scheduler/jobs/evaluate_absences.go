// Package jobs contains implementations of scheduled jobs for the PawLog
// progress engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/achievement"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/streak"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"
	"github.com/pawlog-hub/pawlog-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE ABSENCES JOB
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateAbsencesJob walks every owner and checks their subjects for
// logging gaps. Negative achievements normally fire on the submission that
// ends a gap; this job catches the users who never come back, so a gap is
// penalized even without a new entry.
//
// The penalty ledger source (definition ID + window key) is shared with the
// submission flow, so a gap penalized here is not penalized again when the
// user eventually returns.
type EvaluateAbsencesJob struct {
	subjects        subject.Repository
	entries         entry.Repository
	achievementDefs achievement.DefinitionRepository
	achievements    achievement.Repository
	states          rewards.StateRepository
	ledger          *rewards.Ledger
	tx              saga.Transactor
	locks           *saga.UserLocks
	eventBus        shared.EventPublisher
	logger          *slog.Logger

	config EvaluateAbsencesConfig

	lastRunStats atomic.Value // *EvaluateAbsencesStats
}

// EvaluateAbsencesConfig contains configuration for the job.
type EvaluateAbsencesConfig struct {
	// RepeatablePenalties lets a negative achievement penalize every new
	// absence window instead of only the first one. Must match the
	// submission flow configuration.
	RepeatablePenalties bool

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultEvaluateAbsencesConfig returns sensible defaults.
func DefaultEvaluateAbsencesConfig() EvaluateAbsencesConfig {
	return EvaluateAbsencesConfig{
		RepeatablePenalties: false,
		Timeout:             10 * time.Minute,
	}
}

// EvaluateAbsencesStats contains statistics from one run.
type EvaluateAbsencesStats struct {
	StartedAt        time.Time
	Duration         time.Duration
	OwnersChecked    int
	SubjectsChecked  int
	GapsFound        int
	PenaltiesApplied int
	CoinsDebited     int
	Errors           int
}

// NewEvaluateAbsencesJob creates the job.
func NewEvaluateAbsencesJob(
	subjects subject.Repository,
	entries entry.Repository,
	achievementDefs achievement.DefinitionRepository,
	achievements achievement.Repository,
	states rewards.StateRepository,
	ledger *rewards.Ledger,
	tx saga.Transactor,
	locks *saga.UserLocks,
	eventBus shared.EventPublisher,
	logger *slog.Logger,
	config EvaluateAbsencesConfig,
) *EvaluateAbsencesJob {
	if logger == nil {
		logger = slog.Default()
	}
	if eventBus == nil {
		eventBus = shared.NoopPublisher{}
	}
	if locks == nil {
		locks = saga.NewUserLocks()
	}

	return &EvaluateAbsencesJob{
		subjects:        subjects,
		entries:         entries,
		achievementDefs: achievementDefs,
		achievements:    achievements,
		states:          states,
		ledger:          ledger,
		tx:              tx,
		locks:           locks,
		eventBus:        eventBus,
		logger:          logger,
		config:          config,
	}
}

// Name implements scheduler.Job.
func (j *EvaluateAbsencesJob) Name() string {
	return "evaluate_absences"
}

// Description implements scheduler.Job.
func (j *EvaluateAbsencesJob) Description() string {
	return "Applies negative-achievement penalties for subjects with logging gaps"
}

// Run implements scheduler.Job.
func (j *EvaluateAbsencesJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &EvaluateAbsencesStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	defs, err := j.achievementDefs.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("evaluate_absences: failed to load definitions: %w", err)
	}

	hasNegative := false
	for _, def := range defs {
		if def.IsNegative {
			hasNegative = true
			break
		}
	}
	if !hasNegative {
		j.logger.Debug("no negative achievement definitions, nothing to evaluate")
		return nil
	}

	owners, err := j.subjects.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("evaluate_absences: failed to list owners: %w", err)
	}

	for _, ownerID := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stats.OwnersChecked++
		if err := j.evaluateOwner(ctx, ownerID, defs, stats); err != nil {
			stats.Errors++
			j.logger.Error("failed to evaluate owner",
				"user_id", ownerID.String(),
				"error", err,
			)
		}
	}

	j.logger.Info("absence evaluation completed",
		"owners", stats.OwnersChecked,
		"subjects", stats.SubjectsChecked,
		"gaps", stats.GapsFound,
		"penalties", stats.PenaltiesApplied,
		"coins_debited", stats.CoinsDebited,
		"errors", stats.Errors,
	)

	return nil
}

// evaluateOwner evaluates all subjects of one owner under the owner's lock.
func (j *EvaluateAbsencesJob) evaluateOwner(
	ctx context.Context,
	ownerID shared.UserID,
	defs []achievement.Definition,
	stats *EvaluateAbsencesStats,
) error {
	unlock := j.locks.Lock(ownerID.String())
	defer unlock()

	tracker := achievement.NewTracker(j.config.RepeatablePenalties)
	var events []shared.Event

	err := j.tx.WithinTx(ctx, func(ctx context.Context) error {
		subjects, err := j.subjects.GetByOwner(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to load subjects: %w", err)
		}

		rows, err := j.achievements.GetByUser(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to load user achievements: %w", err)
		}
		rowsByID := achievement.ByID(rows)

		now := time.Now()
		totalDebited := 0

		for _, subj := range subjects {
			stats.SubjectsChecked++
			loc := subj.Location()

			history, err := j.entries.ListBySubject(ctx, subj.ID)
			if err != nil {
				return fmt.Errorf("failed to load entries of %s: %w", subj.ID, err)
			}
			if len(history) == 0 {
				// A subject that never logged has no absence window to key on.
				continue
			}

			times := make([]time.Time, 0, len(history))
			last := history[0].OccurredAt
			for _, e := range history {
				times = append(times, e.OccurredAt)
				if e.OccurredAt.After(last) {
					last = e.OccurredAt
				}
			}

			missed := streak.MissedDays(times, now, loc)
			if missed == 0 {
				continue
			}
			stats.GapsFound++

			windowKey := timeutil.DayKey(timeutil.AddDays(last, 1, loc), loc)
			snapshot := rule.BuildSnapshot(history, now, loc)

			result := tracker.Apply(ownerID, snapshot, defs, rowsByID, windowKey, now)

			for _, row := range result.Updated {
				if err := j.achievements.Upsert(ctx, row); err != nil {
					return fmt.Errorf("failed to save achievement %s: %w", row.AchievementID, err)
				}
				rowsByID[row.AchievementID] = row
			}

			for _, penalty := range result.Penalties {
				debited, evs, err := j.applyPenalty(ctx, ownerID, penalty)
				if err != nil {
					return err
				}
				stats.PenaltiesApplied++
				totalDebited += debited
				events = append(events, evs...)
			}

			if len(result.Penalties) > 0 {
				// The streak at the time of the last entry is what the gap broke.
				previous := streak.Compute(times, last, loc)
				events = append(events, shared.StreakBrokenEvent{
					BaseEvent:      shared.NewBaseEvent(shared.EventStreakBroken, ownerID.String()),
					SubjectID:      subj.ID.String(),
					PreviousStreak: previous.Current,
					MissedDays:     missed,
				})
			}
		}

		if totalDebited > 0 {
			if err := j.syncState(ctx, ownerID, now); err != nil {
				return err
			}
			stats.CoinsDebited += totalDebited
		}

		return nil
	})
	if err != nil {
		return err
	}

	if len(events) > 0 {
		_ = j.eventBus.Publish(ctx, events...)
	}

	return nil
}

// applyPenalty debits one penalty, clamped so the balance never goes
// negative. Returns the coins actually debited and the resulting events.
func (j *EvaluateAbsencesJob) applyPenalty(
	ctx context.Context,
	ownerID shared.UserID,
	penalty achievement.Penalty,
) (int, []shared.Event, error) {
	sourceID := penalty.Definition.ID + ":" + penalty.WindowKey

	balance, err := j.ledger.Balance(ctx, ownerID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to compute balance: %w", err)
	}

	amount := penalty.Points
	if amount > balance {
		amount = balance
	}

	var events []shared.Event
	debited := 0

	if amount > 0 {
		_, created, err := j.ledger.Debit(ctx, ownerID, amount, rewards.ReasonAchievement, sourceID)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to debit penalty %s: %w", sourceID, err)
		}
		if created {
			debited = amount.Int()

			newBalance, err := j.ledger.Balance(ctx, ownerID)
			if err != nil {
				return 0, nil, err
			}
			events = append(events, shared.CoinsDebitedEvent{
				BaseEvent:  shared.NewBaseEvent(shared.EventCoinsDebited, ownerID.String()),
				Amount:     debited,
				Reason:     string(rewards.ReasonAchievement),
				SourceID:   sourceID,
				NewBalance: newBalance.Int(),
			})
		}
	}

	events = append(events, shared.AchievementPenalizedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventAchievementPenalized, ownerID.String()),
		AchievementID: penalty.Definition.ID,
		PenaltyCoins:  debited,
		WindowKey:     penalty.WindowKey,
	})

	return debited, events, nil
}

// syncState recomputes the coin balance from the ledger and saves the state.
func (j *EvaluateAbsencesJob) syncState(ctx context.Context, ownerID shared.UserID, now time.Time) error {
	st, err := j.states.Get(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load rewards state: %w", err)
	}

	balance, err := j.ledger.Balance(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to compute balance: %w", err)
	}

	st.CoinBalance = balance
	st.UpdatedAt = now

	if err := j.states.Upsert(ctx, st); err != nil {
		return fmt.Errorf("failed to save rewards state: %w", err)
	}

	return nil
}

// LastRunStats returns statistics from the most recent run.
func (j *EvaluateAbsencesJob) LastRunStats() *EvaluateAbsencesStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*EvaluateAbsencesStats)
	}
	return nil
}
