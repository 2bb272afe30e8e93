// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/achievement"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/challenge"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/streak"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"
	"github.com/pawlog-hub/pawlog-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS FLOW SAGA
// Complex business process: a single log submission drives the whole engine.
// Flow: Validate → Load Subject → Acquire User Lock → [tx: Dedupe → Append
//
//	Entry → Build Stats → Apply Achievements → Apply Challenges → Persist
//	Progress → Apply Rewards] → Publish Events
//
// All state mutations happen inside one storage transaction under the
// owner's lock; events are published only after the transaction commits.
// ══════════════════════════════════════════════════════════════════════════════

// Transactor runs a function inside a storage transaction. Repositories
// participating in the flow pick the transaction up from the context.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator mints identifiers for new entries and ledger records.
type IDGenerator func() string

// SubmitInput contains the data of one log submission.
type SubmitInput struct {
	// SubjectID - the pet the entry belongs to.
	SubjectID shared.SubjectID

	// OccurredAt - when the event happened (client-provided, with zone).
	OccurredAt time.Time

	// Attributes - the entry attributes.
	Attributes entry.Attributes

	// IdempotencyKey - client retry key. Resubmission with the same key
	// returns the original outcome instead of creating a second entry.
	IdempotencyKey string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate checks if the input is valid.
func (i SubmitInput) Validate() error {
	if !i.SubjectID.IsValid() {
		return shared.ErrInvalidSubjectID
	}
	if i.OccurredAt.IsZero() {
		return entry.ErrInvalidOccurredAt
	}
	if i.IdempotencyKey == "" {
		return fmt.Errorf("progress_flow: %w: idempotency key", shared.ErrEmptyValue)
	}
	return i.Attributes.Validate()
}

// SubmitResult contains the outcome of one log submission.
type SubmitResult struct {
	// EntryID - the appended (or previously appended) entry.
	EntryID string

	// Duplicate - true when the submission was a retry and the original
	// outcome is returned without re-applying any progress.
	Duplicate bool

	// SubjectID - the pet the entry belongs to.
	SubjectID shared.SubjectID

	// UserID - the owner whose progress was updated.
	UserID shared.UserID

	// Streak - the subject's streak after the submission.
	Streak streak.Streak

	// UnlockedAchievements - achievements unlocked by this submission.
	UnlockedAchievements []achievement.Unlocked

	// Penalties - negative-achievement penalties applied by this submission.
	Penalties []achievement.Penalty

	// CompletedChallenges - challenges completed by this submission.
	CompletedChallenges []challenge.Completed

	// CoinsAwarded - total coins credited.
	CoinsAwarded int

	// CoinsPenalized - total coins actually debited by penalties
	// (clamped so the balance never goes negative).
	CoinsPenalized int

	// XPAwarded - total experience awarded.
	XPAwarded int

	// LevelsGained - levels gained by this submission.
	LevelsGained int

	// State - the rewards state after the submission.
	State *rewards.State

	// ProcessedAt - when the flow completed.
	ProcessedAt time.Time
}

// HasRewards returns true if the submission produced any reward movement.
func (r *SubmitResult) HasRewards() bool {
	return r.CoinsAwarded > 0 || r.CoinsPenalized > 0 || r.XPAwarded > 0
}

// FlowStep represents a step in the progress flow.
type FlowStep string

const (
	StepValidate          FlowStep = "validate"
	StepLoadSubject       FlowStep = "load_subject"
	StepDedupe            FlowStep = "dedupe"
	StepAppendEntry       FlowStep = "append_entry"
	StepBuildStats        FlowStep = "build_stats"
	StepApplyAchievements FlowStep = "apply_achievements"
	StepApplyChallenges   FlowStep = "apply_challenges"
	StepPersistProgress   FlowStep = "persist_progress"
	StepApplyRewards      FlowStep = "apply_rewards"
	StepPublishEvents     FlowStep = "publish_events"
	StepComplete          FlowStep = "complete"
)

// flowState tracks the current state of the progress flow saga.
type flowState struct {
	CurrentStep FlowStep
	Input       SubmitInput
	Subject     *subject.Subject
	Entry       *entry.Entry

	// History - all entries of the subject, oldest first, including Entry.
	History []*entry.Entry

	// PriorStreak - the streak before this submission.
	PriorStreak streak.Streak

	// Stats - the snapshot achievements are evaluated against.
	Stats rule.Snapshot

	// AbsenceWindowKey - first missed day preceding this submission
	// (empty when there was no gap).
	AbsenceWindowKey string

	AchievementResult achievement.ApplyResult
	ChallengeResult   challenge.ApplyResult

	Result *SubmitResult
	Events []shared.Event

	StartedAt  time.Time
	FailedStep FlowStep
	Error      error
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS FLOW SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressFlowDeps contains all collaborators of the flow.
type ProgressFlowDeps struct {
	Subjects        subject.Repository
	Entries         entry.Repository
	AchievementDefs achievement.DefinitionRepository
	Achievements    achievement.Repository
	ChallengeDefs   challenge.DefinitionRepository
	Challenges      challenge.Repository
	States          rewards.StateRepository
	Ledger          *rewards.Ledger
	Tx              Transactor
	Locks           *UserLocks
	EventBus        shared.EventPublisher
	NewID           IDGenerator
	Clock           shared.Clock
}

// ProgressFlowConfig contains configuration for the flow.
type ProgressFlowConfig struct {
	// RepeatablePenalties lets a negative achievement penalize every new
	// absence window instead of only the first one.
	RepeatablePenalties bool

	// LevelCurveBaseXP - base of the level curve.
	LevelCurveBaseXP int
}

// DefaultProgressFlowConfig returns default configuration.
func DefaultProgressFlowConfig() ProgressFlowConfig {
	return ProgressFlowConfig{
		RepeatablePenalties: false,
		LevelCurveBaseXP:    rewards.DefaultBaseXP,
	}
}

// ProgressFlow orchestrates the complete processing of one log submission.
type ProgressFlow struct {
	deps ProgressFlowDeps

	achievementTracker *achievement.Tracker
	challengeTracker   *challenge.Tracker
	curve              rewards.LevelCurve
}

// NewProgressFlow creates the flow with all dependencies.
func NewProgressFlow(deps ProgressFlowDeps, config ProgressFlowConfig) *ProgressFlow {
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock
	}
	if deps.EventBus == nil {
		deps.EventBus = shared.NoopPublisher{}
	}
	if deps.Locks == nil {
		deps.Locks = NewUserLocks()
	}

	return &ProgressFlow{
		deps:               deps,
		achievementTracker: achievement.NewTracker(config.RepeatablePenalties),
		challengeTracker:   challenge.NewTracker(),
		curve:              rewards.DefaultLevelCurve(shared.XP(config.LevelCurveBaseXP)),
	}
}

// Execute runs the complete submission flow.
func (f *ProgressFlow) Execute(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	state := &flowState{
		CurrentStep: StepValidate,
		Input:       input,
		StartedAt:   f.deps.Clock(),
	}

	if err := input.Validate(); err != nil {
		state.FailedStep = StepValidate
		return nil, f.wrapError(state, err)
	}

	// Step 1: Load subject (read-only, outside the transaction).
	state.CurrentStep = StepLoadSubject
	if err := f.stepLoadSubject(ctx, state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// All mutations run under the owner's lock, in one transaction.
	unlock := f.deps.Locks.Lock(state.Subject.OwnerID.String())
	defer unlock()

	err := f.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		// Step 2: Dedupe by idempotency key.
		state.CurrentStep = StepDedupe
		if err := f.stepDedupe(ctx, state); err != nil {
			return err
		}
		if state.Result != nil && state.Result.Duplicate {
			return nil
		}

		// Step 3: Append the entry to the log.
		state.CurrentStep = StepAppendEntry
		if err := f.stepAppendEntry(ctx, state); err != nil {
			return err
		}

		// Step 4: Build the stat snapshot.
		state.CurrentStep = StepBuildStats
		if err := f.stepBuildStats(ctx, state); err != nil {
			return err
		}

		// Step 5: Apply achievements.
		state.CurrentStep = StepApplyAchievements
		if err := f.stepApplyAchievements(ctx, state); err != nil {
			return err
		}

		// Step 6: Apply challenges.
		state.CurrentStep = StepApplyChallenges
		if err := f.stepApplyChallenges(ctx, state); err != nil {
			return err
		}

		// Step 7: Persist progress rows.
		state.CurrentStep = StepPersistProgress
		if err := f.stepPersistProgress(ctx, state); err != nil {
			return err
		}

		// Step 8: Apply rewards (ledger + state).
		state.CurrentStep = StepApplyRewards
		return f.stepApplyRewards(ctx, state)
	})
	if err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 9: Publish events only after the transaction committed.
	// Event delivery is best-effort: subscribers drive secondary concerns.
	state.CurrentStep = StepPublishEvents
	if len(state.Events) > 0 {
		_ = f.deps.EventBus.Publish(ctx, state.Events...)
	}

	state.CurrentStep = StepComplete
	state.Result.ProcessedAt = f.deps.Clock()

	return state.Result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

// stepLoadSubject loads the subject the entry belongs to.
func (f *ProgressFlow) stepLoadSubject(ctx context.Context, state *flowState) error {
	subj, err := f.deps.Subjects.GetByID(ctx, state.Input.SubjectID)
	if err != nil {
		state.FailedStep = StepLoadSubject
		return fmt.Errorf("failed to load subject: %w", err)
	}
	state.Subject = subj
	return nil
}

// stepDedupe returns the original outcome for a retried submission.
func (f *ProgressFlow) stepDedupe(ctx context.Context, state *flowState) error {
	prior, err := f.deps.Entries.GetByIdempotencyKey(ctx, state.Input.SubjectID, state.Input.IdempotencyKey)
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			return nil
		}
		state.FailedStep = StepDedupe
		return fmt.Errorf("failed to check idempotency key: %w", err)
	}

	// Retry: report the current state without re-applying anything.
	result, err := f.duplicateResult(ctx, state, prior)
	if err != nil {
		state.FailedStep = StepDedupe
		return err
	}
	state.Result = result
	return nil
}

// stepAppendEntry validates and appends the new log entry.
func (f *ProgressFlow) stepAppendEntry(ctx context.Context, state *flowState) error {
	now := f.deps.Clock()

	e, err := entry.NewEntry(entry.NewEntryParams{
		ID:             f.deps.NewID(),
		SubjectID:      state.Input.SubjectID,
		OccurredAt:     state.Input.OccurredAt,
		Attributes:     state.Input.Attributes,
		IdempotencyKey: state.Input.IdempotencyKey,
		Now:            now,
	})
	if err != nil {
		state.FailedStep = StepAppendEntry
		return err
	}

	if err := f.deps.Entries.Append(ctx, e); err != nil {
		state.FailedStep = StepAppendEntry
		return fmt.Errorf("failed to append entry: %w", err)
	}

	state.Entry = e
	return nil
}

// stepBuildStats builds the snapshot the trackers evaluate against.
//
// The snapshot counts the freshly appended entry, but MissedDays is taken
// from the state *before* the append: a subject returning after a gap is
// penalized exactly once for that gap, on the submission that ends it.
func (f *ProgressFlow) stepBuildStats(ctx context.Context, state *flowState) error {
	loc := state.Subject.Location()
	now := f.deps.Clock()

	history, err := f.deps.Entries.ListBySubject(ctx, state.Input.SubjectID)
	if err != nil {
		state.FailedStep = StepBuildStats
		return fmt.Errorf("failed to load entry history: %w", err)
	}

	// The repository call above may or may not already include the new
	// entry depending on isolation; normalize by filtering and re-adding.
	prior := make([]*entry.Entry, 0, len(history))
	for _, e := range history {
		if e.ID != state.Entry.ID {
			prior = append(prior, e)
		}
	}

	priorTimes := make([]time.Time, 0, len(prior))
	for _, e := range prior {
		priorTimes = append(priorTimes, e.OccurredAt)
	}
	state.PriorStreak = streak.Compute(priorTimes, now, loc)

	missedBefore := streak.MissedDays(priorTimes, now, loc)
	if missedBefore > 0 {
		last := priorTimes[0]
		for _, t := range priorTimes[1:] {
			if t.After(last) {
				last = t
			}
		}
		state.AbsenceWindowKey = timeutil.DayKey(timeutil.AddDays(last, 1, loc), loc)
	}

	state.History = append(prior, state.Entry)
	state.Stats = rule.BuildSnapshot(state.History, now, loc)
	state.Stats.MissedDays = missedBefore

	return nil
}

// stepApplyAchievements recomputes achievement progress.
func (f *ProgressFlow) stepApplyAchievements(ctx context.Context, state *flowState) error {
	defs, err := f.deps.AchievementDefs.ListDefinitions(ctx)
	if err != nil {
		state.FailedStep = StepApplyAchievements
		return fmt.Errorf("failed to load achievement definitions: %w", err)
	}

	rows, err := f.deps.Achievements.GetByUser(ctx, state.Subject.OwnerID)
	if err != nil {
		state.FailedStep = StepApplyAchievements
		return fmt.Errorf("failed to load user achievements: %w", err)
	}

	state.AchievementResult = f.achievementTracker.Apply(
		state.Subject.OwnerID,
		state.Stats,
		defs,
		achievement.ByID(rows),
		state.AbsenceWindowKey,
		f.deps.Clock(),
	)

	return nil
}

// stepApplyChallenges recomputes challenge progress for windows containing
// the event.
func (f *ProgressFlow) stepApplyChallenges(ctx context.Context, state *flowState) error {
	defs, err := f.deps.ChallengeDefs.ListActiveDefinitions(ctx, state.Entry.OccurredAt)
	if err != nil {
		state.FailedStep = StepApplyChallenges
		return fmt.Errorf("failed to load challenge definitions: %w", err)
	}

	rows, err := f.deps.Challenges.GetByUser(ctx, state.Subject.OwnerID)
	if err != nil {
		state.FailedStep = StepApplyChallenges
		return fmt.Errorf("failed to load user challenges: %w", err)
	}

	loc := state.Subject.Location()
	now := f.deps.Clock()

	// A backdated event may target a window that has already closed.
	// Such windows are settled; the event stays in the log but does not
	// accrue challenge progress.
	active := make([]challenge.Definition, 0, len(defs))
	var stale []string
	for _, def := range defs {
		if err := def.AcceptsAt(now, loc); errors.Is(err, shared.ErrStaleEvent) {
			stale = append(stale, def.ID)
			continue
		}
		active = append(active, def)
	}

	state.ChallengeResult = f.challengeTracker.Apply(
		state.Subject.OwnerID,
		state.Entry.OccurredAt,
		active,
		challenge.ByID(rows),
		func(def challenge.Definition) rule.Snapshot {
			return rule.BuildWindowSnapshot(state.History, def.StartDate, def.EndDate, now, loc)
		},
		loc,
		now,
	)
	state.ChallengeResult.Skipped = append(state.ChallengeResult.Skipped, stale...)

	return nil
}

// stepPersistProgress saves all changed progress rows.
func (f *ProgressFlow) stepPersistProgress(ctx context.Context, state *flowState) error {
	for _, row := range state.AchievementResult.Updated {
		if err := f.deps.Achievements.Upsert(ctx, row); err != nil {
			state.FailedStep = StepPersistProgress
			return fmt.Errorf("failed to save achievement %s: %w", row.AchievementID, err)
		}
	}

	for _, row := range state.ChallengeResult.Updated {
		if err := f.deps.Challenges.Upsert(ctx, row); err != nil {
			state.FailedStep = StepPersistProgress
			return fmt.Errorf("failed to save challenge %s: %w", row.ChallengeID, err)
		}
	}

	return nil
}

// stepApplyRewards credits unlocks and completions, debits penalties, and
// rolls the rewards state forward. The coin balance is always recomputed
// from the ledger sum, never adjusted incrementally.
func (f *ProgressFlow) stepApplyRewards(ctx context.Context, state *flowState) error {
	userID := state.Subject.OwnerID
	now := f.deps.Clock()

	st, err := f.deps.States.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, rewards.ErrStateNotFound) {
			state.FailedStep = StepApplyRewards
			return fmt.Errorf("failed to load rewards state: %w", err)
		}
		st = rewards.NewState(userID, f.curve, now)
	}
	oldLevel := st.Level

	var coinsAwarded, coinsPenalized int
	var xpAwarded shared.XP

	for _, unlocked := range state.AchievementResult.NewlyUnlocked {
		def := unlocked.Definition
		if def.CoinReward > 0 {
			created, err := f.credit(ctx, state, userID, def.CoinReward, rewards.ReasonAchievement, def.ID)
			if err != nil {
				return err
			}
			if created {
				coinsAwarded += def.CoinReward.Int()
			}
		}
		xpAwarded = xpAwarded.Add(def.XPBonus)

		ev := shared.AchievementUnlockedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventAchievementUnlocked, userID.String()),
			AchievementID: def.ID,
			Title:         def.Title,
			CoinReward:    def.CoinReward.Int(),
			XPBonus:       int(def.XPBonus),
		}
		ev.CorrelationID = state.Input.CorrelationID
		state.Events = append(state.Events, ev)
	}

	for _, penalty := range state.AchievementResult.Penalties {
		debited, err := f.penalize(ctx, state, userID, penalty)
		if err != nil {
			return err
		}
		coinsPenalized += debited
	}

	for _, completed := range state.ChallengeResult.NewlyCompleted {
		def := completed.Definition
		created, err := f.credit(ctx, state, userID, shared.Coins(def.Points), rewards.ReasonChallenge, def.ID)
		if err != nil {
			return err
		}
		if created {
			coinsAwarded += def.Points
		}
		xpAwarded = xpAwarded.Add(shared.XP(def.Points))

		ev := shared.ChallengeCompletedEvent{
			BaseEvent:   shared.NewBaseEvent(shared.EventChallengeCompleted, userID.String()),
			ChallengeID: def.ID,
			Points:      def.Points,
		}
		ev.CorrelationID = state.Input.CorrelationID
		state.Events = append(state.Events, ev)
	}

	levelsGained := st.AwardExperience(xpAwarded, f.curve, now)

	balance, err := f.deps.Ledger.Balance(ctx, userID)
	if err != nil {
		state.FailedStep = StepApplyRewards
		return fmt.Errorf("failed to compute balance: %w", err)
	}
	st.CoinBalance = balance
	st.UpdatedAt = now

	if err := f.deps.States.Upsert(ctx, st); err != nil {
		state.FailedStep = StepApplyRewards
		return fmt.Errorf("failed to save rewards state: %w", err)
	}

	if levelsGained > 0 {
		ev := shared.LevelUpEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventLevelUp, userID.String()),
			OldLevel:  oldLevel.Int(),
			NewLevel:  st.Level.Int(),
		}
		ev.CorrelationID = state.Input.CorrelationID
		state.Events = append(state.Events, ev)
	}

	loc := state.Subject.Location()
	postTimes := make([]time.Time, 0, len(state.History))
	for _, e := range state.History {
		postTimes = append(postTimes, e.OccurredAt)
	}
	postStreak := streak.Compute(postTimes, now, loc)

	entryEv := shared.EntryLoggedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventEntryLogged, userID.String()),
		SubjectID: state.Subject.ID.String(),
		EntryID:   state.Entry.ID,
		LoggedFor: state.Entry.OccurredAt,
		DayStreak: postStreak.Current,
	}
	entryEv.CorrelationID = state.Input.CorrelationID
	state.Events = append([]shared.Event{entryEv}, state.Events...)

	if postStreak.Current != state.PriorStreak.Current {
		ev := shared.StreakUpdatedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventStreakUpdated, userID.String()),
			SubjectID:     state.Subject.ID.String(),
			CurrentStreak: postStreak.Current,
			LongestStreak: postStreak.Longest,
		}
		ev.CorrelationID = state.Input.CorrelationID
		state.Events = append(state.Events, ev)
	}

	state.Result = &SubmitResult{
		EntryID:              state.Entry.ID,
		Duplicate:            false,
		SubjectID:            state.Subject.ID,
		UserID:               userID,
		Streak:               postStreak,
		UnlockedAchievements: state.AchievementResult.NewlyUnlocked,
		Penalties:            state.AchievementResult.Penalties,
		CompletedChallenges:  state.ChallengeResult.NewlyCompleted,
		CoinsAwarded:         coinsAwarded,
		CoinsPenalized:       coinsPenalized,
		XPAwarded:            int(xpAwarded),
		LevelsGained:         levelsGained,
		State:                st,
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// credit credits coins and records the credited event. Returns whether the
// ledger entry was created by this call (false for idempotent replays).
func (f *ProgressFlow) credit(
	ctx context.Context,
	state *flowState,
	userID shared.UserID,
	amount shared.Coins,
	reason rewards.Reason,
	sourceID string,
) (bool, error) {
	_, created, err := f.deps.Ledger.Credit(ctx, userID, amount, reason, sourceID)
	if err != nil {
		state.FailedStep = StepApplyRewards
		return false, fmt.Errorf("failed to credit %s/%s: %w", reason, sourceID, err)
	}
	if !created {
		return false, nil
	}

	balance, err := f.deps.Ledger.Balance(ctx, userID)
	if err != nil {
		state.FailedStep = StepApplyRewards
		return false, err
	}

	ev := shared.CoinsCreditedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventCoinsCredited, userID.String()),
		Amount:     amount.Int(),
		Reason:     string(reason),
		SourceID:   sourceID,
		NewBalance: balance.Int(),
	}
	ev.CorrelationID = state.Input.CorrelationID
	state.Events = append(state.Events, ev)

	return true, nil
}

// penalize debits a negative-achievement penalty, clamped to the current
// balance so it never goes negative. Returns the coins actually debited.
func (f *ProgressFlow) penalize(
	ctx context.Context,
	state *flowState,
	userID shared.UserID,
	penalty achievement.Penalty,
) (int, error) {
	sourceID := penalty.Definition.ID + ":" + penalty.WindowKey

	balance, err := f.deps.Ledger.Balance(ctx, userID)
	if err != nil {
		state.FailedStep = StepApplyRewards
		return 0, err
	}

	amount := penalty.Points
	if amount > balance {
		amount = balance
	}

	debited := 0
	if amount > 0 {
		_, created, err := f.deps.Ledger.Debit(ctx, userID, amount, rewards.ReasonAchievement, sourceID)
		if err != nil {
			state.FailedStep = StepApplyRewards
			return 0, fmt.Errorf("failed to debit penalty %s: %w", sourceID, err)
		}
		if created {
			debited = amount.Int()

			newBalance, err := f.deps.Ledger.Balance(ctx, userID)
			if err != nil {
				state.FailedStep = StepApplyRewards
				return 0, err
			}

			ev := shared.CoinsDebitedEvent{
				BaseEvent:  shared.NewBaseEvent(shared.EventCoinsDebited, userID.String()),
				Amount:     debited,
				Reason:     string(rewards.ReasonAchievement),
				SourceID:   sourceID,
				NewBalance: newBalance.Int(),
			}
			ev.CorrelationID = state.Input.CorrelationID
			state.Events = append(state.Events, ev)
		}
	}

	pe := shared.AchievementPenalizedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventAchievementPenalized, userID.String()),
		AchievementID: penalty.Definition.ID,
		PenaltyCoins:  debited,
		WindowKey:     penalty.WindowKey,
	}
	pe.CorrelationID = state.Input.CorrelationID
	state.Events = append(state.Events, pe)

	return debited, nil
}

// duplicateResult rebuilds the outcome of an earlier submission from the
// persisted state.
func (f *ProgressFlow) duplicateResult(ctx context.Context, state *flowState, prior *entry.Entry) (*SubmitResult, error) {
	loc := state.Subject.Location()
	now := f.deps.Clock()

	history, err := f.deps.Entries.ListBySubject(ctx, state.Input.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entry history: %w", err)
	}
	times := make([]time.Time, 0, len(history))
	for _, e := range history {
		times = append(times, e.OccurredAt)
	}

	st, err := f.deps.States.Get(ctx, state.Subject.OwnerID)
	if err != nil {
		if !errors.Is(err, rewards.ErrStateNotFound) {
			return nil, fmt.Errorf("failed to load rewards state: %w", err)
		}
		st = rewards.NewState(state.Subject.OwnerID, f.curve, now)
	}

	return &SubmitResult{
		EntryID:     prior.ID,
		Duplicate:   true,
		SubjectID:   state.Subject.ID,
		UserID:      state.Subject.OwnerID,
		Streak:      streak.Compute(times, now, loc),
		State:       st,
		ProcessedAt: now,
	}, nil
}

// wrapError wraps an error with saga context.
func (f *ProgressFlow) wrapError(state *flowState, err error) error {
	if state.FailedStep == "" {
		state.FailedStep = state.CurrentStep
	}
	state.Error = err
	return &ProgressFlowError{
		Step:      state.FailedStep,
		SubjectID: state.Input.SubjectID.String(),
		Cause:     err,
		Message:   fmt.Sprintf("progress flow failed at step '%s': %v", state.FailedStep, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressFlowError represents an error during the progress flow.
type ProgressFlowError struct {
	Step      FlowStep
	SubjectID string
	Cause     error
	Message   string
}

// Error implements the error interface.
func (e *ProgressFlowError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ProgressFlowError) Unwrap() error {
	return e.Cause
}
