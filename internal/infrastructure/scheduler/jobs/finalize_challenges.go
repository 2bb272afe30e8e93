package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/challenge"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"
	"github.com/pawlog-hub/pawlog-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZE CHALLENGES JOB
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeChallengesJob makes a final recomputation of challenges whose
// window recently closed. Completion normally happens at submit time, but a
// user whose qualifying entry was the last one of the window never submits
// again inside the window; this job settles those rows.
//
// Completion is write-once and rewards are ledger-idempotent, so finalizing
// an already-settled challenge is a no-op.
type FinalizeChallengesJob struct {
	subjects      subject.Repository
	entries       entry.Repository
	challengeDefs challenge.DefinitionRepository
	challenges    challenge.Repository
	states        rewards.StateRepository
	ledger        *rewards.Ledger
	tx            saga.Transactor
	locks         *saga.UserLocks
	eventBus      shared.EventPublisher
	logger        *slog.Logger

	config FinalizeChallengesConfig

	tracker *challenge.Tracker
	curve   rewards.LevelCurve
}

// FinalizeChallengesConfig contains configuration for the job.
type FinalizeChallengesConfig struct {
	// Lookback bounds how far past the window end a challenge is still
	// re-settled. Keeps each run proportional to recent activity.
	Lookback time.Duration

	// LevelCurveBaseXP - base of the level curve. Must match the
	// submission flow configuration.
	LevelCurveBaseXP int

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultFinalizeChallengesConfig returns sensible defaults.
func DefaultFinalizeChallengesConfig() FinalizeChallengesConfig {
	return FinalizeChallengesConfig{
		Lookback:         72 * time.Hour,
		LevelCurveBaseXP: rewards.DefaultBaseXP,
		Timeout:          10 * time.Minute,
	}
}

// NewFinalizeChallengesJob creates the job.
func NewFinalizeChallengesJob(
	subjects subject.Repository,
	entries entry.Repository,
	challengeDefs challenge.DefinitionRepository,
	challenges challenge.Repository,
	states rewards.StateRepository,
	ledger *rewards.Ledger,
	tx saga.Transactor,
	locks *saga.UserLocks,
	eventBus shared.EventPublisher,
	logger *slog.Logger,
	config FinalizeChallengesConfig,
) *FinalizeChallengesJob {
	if logger == nil {
		logger = slog.Default()
	}
	if eventBus == nil {
		eventBus = shared.NoopPublisher{}
	}
	if locks == nil {
		locks = saga.NewUserLocks()
	}
	if config.Lookback <= 0 {
		config.Lookback = 72 * time.Hour
	}
	if config.LevelCurveBaseXP <= 0 {
		config.LevelCurveBaseXP = rewards.DefaultBaseXP
	}

	return &FinalizeChallengesJob{
		subjects:      subjects,
		entries:       entries,
		challengeDefs: challengeDefs,
		challenges:    challenges,
		states:        states,
		ledger:        ledger,
		tx:            tx,
		locks:         locks,
		eventBus:      eventBus,
		logger:        logger,
		config:        config,
		tracker:       challenge.NewTracker(),
		curve:         rewards.DefaultLevelCurve(shared.XP(config.LevelCurveBaseXP)),
	}
}

// Name implements scheduler.Job.
func (j *FinalizeChallengesJob) Name() string {
	return "finalize_challenges"
}

// Description implements scheduler.Job.
func (j *FinalizeChallengesJob) Description() string {
	return "Settles challenge progress for windows that recently closed"
}

// Run implements scheduler.Job.
func (j *FinalizeChallengesJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := time.Now()

	defs, err := j.challengeDefs.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("finalize_challenges: failed to load definitions: %w", err)
	}

	// Windows that closed within the lookback (UTC-coarse; the per-subject
	// pass below re-checks boundaries in the subject's timezone).
	recent := make([]challenge.Definition, 0, len(defs))
	for _, def := range defs {
		end := timeutil.EndOfDay(def.EndDate, time.UTC)
		if end.Before(now.Add(-j.config.Lookback)) || end.After(now.Add(24*time.Hour)) {
			continue
		}
		recent = append(recent, def)
	}
	if len(recent) == 0 {
		j.logger.Debug("no recently closed challenge windows")
		return nil
	}

	owners, err := j.subjects.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("finalize_challenges: failed to list owners: %w", err)
	}

	settled := 0
	for _, ownerID := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := j.finalizeOwner(ctx, ownerID, recent)
		if err != nil {
			j.logger.Error("failed to finalize challenges for owner",
				"user_id", ownerID.String(),
				"error", err,
			)
			continue
		}
		settled += n
	}

	j.logger.Info("challenge finalization completed",
		"windows", len(recent),
		"owners", len(owners),
		"newly_completed", settled,
	)

	return nil
}

// finalizeOwner settles recent challenge windows for one owner.
// Returns the number of newly completed challenges.
func (j *FinalizeChallengesJob) finalizeOwner(
	ctx context.Context,
	ownerID shared.UserID,
	defs []challenge.Definition,
) (int, error) {
	unlock := j.locks.Lock(ownerID.String())
	defer unlock()

	var events []shared.Event
	settled := 0

	err := j.tx.WithinTx(ctx, func(ctx context.Context) error {
		subjects, err := j.subjects.GetByOwner(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to load subjects: %w", err)
		}

		rows, err := j.challenges.GetByUser(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to load user challenges: %w", err)
		}
		rowsByID := challenge.ByID(rows)

		now := time.Now()
		var coinsAwarded int
		var xpAwarded shared.XP

		for _, subj := range subjects {
			loc := subj.Location()

			history, err := j.entries.ListBySubject(ctx, subj.ID)
			if err != nil {
				return fmt.Errorf("failed to load entries of %s: %w", subj.ID, err)
			}
			if len(history) == 0 {
				continue
			}

			for _, def := range defs {
				// Anchor the recomputation on the last moment of the window
				// so the tracker treats it as in-window.
				anchor := timeutil.EndOfDay(def.EndDate, loc)

				result := j.tracker.Apply(
					ownerID,
					anchor,
					[]challenge.Definition{def},
					rowsByID,
					func(d challenge.Definition) rule.Snapshot {
						return rule.BuildWindowSnapshot(history, d.StartDate, d.EndDate, now, loc)
					},
					loc,
					now,
				)

				for _, row := range result.Updated {
					if err := j.challenges.Upsert(ctx, row); err != nil {
						return fmt.Errorf("failed to save challenge %s: %w", row.ChallengeID, err)
					}
					rowsByID[row.ChallengeID] = row
				}

				for _, completed := range result.NewlyCompleted {
					settled++
					d := completed.Definition

					_, created, err := j.ledger.Credit(ctx, ownerID, shared.Coins(d.Points), rewards.ReasonChallenge, d.ID)
					if err != nil {
						return fmt.Errorf("failed to credit challenge %s: %w", d.ID, err)
					}
					if created {
						coinsAwarded += d.Points
					}
					xpAwarded = xpAwarded.Add(shared.XP(d.Points))

					events = append(events, shared.ChallengeCompletedEvent{
						BaseEvent:   shared.NewBaseEvent(shared.EventChallengeCompleted, ownerID.String()),
						ChallengeID: d.ID,
						Points:      d.Points,
					})
				}
			}
		}

		if coinsAwarded == 0 && xpAwarded == 0 {
			return nil
		}

		return j.applyRewards(ctx, ownerID, xpAwarded, now, &events)
	})
	if err != nil {
		return 0, err
	}

	if len(events) > 0 {
		_ = j.eventBus.Publish(ctx, events...)
	}

	return settled, nil
}

// applyRewards rolls the rewards state forward after late completions.
func (j *FinalizeChallengesJob) applyRewards(
	ctx context.Context,
	ownerID shared.UserID,
	xpAwarded shared.XP,
	now time.Time,
	events *[]shared.Event,
) error {
	st, err := j.states.Get(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, rewards.ErrStateNotFound) {
			return fmt.Errorf("failed to load rewards state: %w", err)
		}
		st = rewards.NewState(ownerID, j.curve, now)
	}
	oldLevel := st.Level

	levelsGained := st.AwardExperience(xpAwarded, j.curve, now)

	balance, err := j.ledger.Balance(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to compute balance: %w", err)
	}
	st.CoinBalance = balance
	st.UpdatedAt = now

	if err := j.states.Upsert(ctx, st); err != nil {
		return fmt.Errorf("failed to save rewards state: %w", err)
	}

	if levelsGained > 0 {
		*events = append(*events, shared.LevelUpEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventLevelUp, ownerID.String()),
			OldLevel:  oldLevel.Int(),
			NewLevel:  st.Level.Int(),
		})
	}

	return nil
}
