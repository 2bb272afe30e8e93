package saga

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/achievement"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/challenge"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeSubjects struct {
	subjects map[shared.SubjectID]*subject.Subject
}

func (f *fakeSubjects) Create(_ context.Context, s *subject.Subject) error {
	f.subjects[s.ID] = s
	return nil
}

func (f *fakeSubjects) GetByID(_ context.Context, id shared.SubjectID) (*subject.Subject, error) {
	s, ok := f.subjects[id]
	if !ok {
		return nil, subject.ErrSubjectNotFound
	}
	return s, nil
}

func (f *fakeSubjects) GetByOwner(_ context.Context, ownerID shared.UserID) ([]*subject.Subject, error) {
	var out []*subject.Subject
	for _, s := range f.subjects {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubjects) ListOwners(_ context.Context) ([]shared.UserID, error) {
	seen := map[shared.UserID]bool{}
	var out []shared.UserID
	for _, s := range f.subjects {
		if !seen[s.OwnerID] {
			seen[s.OwnerID] = true
			out = append(out, s.OwnerID)
		}
	}
	return out, nil
}

type fakeEntries struct {
	entries []*entry.Entry
}

func (f *fakeEntries) Append(_ context.Context, e *entry.Entry) error {
	for _, prior := range f.entries {
		if prior.SubjectID == e.SubjectID && prior.IdempotencyKey == e.IdempotencyKey {
			return entry.ErrDuplicateEntry
		}
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeEntries) GetByIdempotencyKey(_ context.Context, subjectID shared.SubjectID, key string) (*entry.Entry, error) {
	for _, e := range f.entries {
		if e.SubjectID == subjectID && e.IdempotencyKey == key {
			return e, nil
		}
	}
	return nil, entry.ErrEntryNotFound
}

func (f *fakeEntries) ListBySubject(_ context.Context, subjectID shared.SubjectID) ([]*entry.Entry, error) {
	var out []*entry.Entry
	for _, e := range f.entries {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEntries) ListBySubjectBetween(_ context.Context, subjectID shared.SubjectID, from, to time.Time) ([]*entry.Entry, error) {
	var out []*entry.Entry
	for _, e := range f.entries {
		if e.SubjectID == subjectID && !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEntries) LastBySubject(_ context.Context, subjectID shared.SubjectID) (*entry.Entry, error) {
	var last *entry.Entry
	for _, e := range f.entries {
		if e.SubjectID == subjectID && (last == nil || e.OccurredAt.After(last.OccurredAt)) {
			last = e
		}
	}
	if last == nil {
		return nil, entry.ErrEntryNotFound
	}
	return last, nil
}

type fakeAchievementDefs struct {
	defs []achievement.Definition
}

func (f *fakeAchievementDefs) ListDefinitions(_ context.Context) ([]achievement.Definition, error) {
	return f.defs, nil
}

func (f *fakeAchievementDefs) GetDefinition(_ context.Context, id string) (achievement.Definition, error) {
	for _, d := range f.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return achievement.Definition{}, achievement.ErrDefinitionNotFound
}

type fakeAchievements struct {
	rows map[string]*achievement.UserAchievement
}

func (f *fakeAchievements) GetByUser(_ context.Context, userID shared.UserID) ([]*achievement.UserAchievement, error) {
	var out []*achievement.UserAchievement
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeAchievements) Upsert(_ context.Context, ua *achievement.UserAchievement) error {
	f.rows[ua.UserID.String()+"|"+ua.AchievementID] = ua
	return nil
}

type fakeChallengeDefs struct {
	defs []challenge.Definition
}

func (f *fakeChallengeDefs) ListDefinitions(_ context.Context) ([]challenge.Definition, error) {
	return f.defs, nil
}

func (f *fakeChallengeDefs) ListActiveDefinitions(_ context.Context, at time.Time) ([]challenge.Definition, error) {
	var out []challenge.Definition
	for _, d := range f.defs {
		if d.Contains(at, time.UTC) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeChallengeDefs) GetDefinition(_ context.Context, id string) (challenge.Definition, error) {
	for _, d := range f.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return challenge.Definition{}, challenge.ErrDefinitionNotFound
}

type fakeChallenges struct {
	rows map[string]*challenge.UserChallenge
}

func (f *fakeChallenges) GetByUser(_ context.Context, userID shared.UserID) ([]*challenge.UserChallenge, error) {
	var out []*challenge.UserChallenge
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeChallenges) Upsert(_ context.Context, uc *challenge.UserChallenge) error {
	f.rows[uc.UserID.String()+"|"+uc.ChallengeID] = uc
	return nil
}

type fakeStates struct {
	states map[shared.UserID]*rewards.State
}

func (f *fakeStates) Get(_ context.Context, userID shared.UserID) (*rewards.State, error) {
	st, ok := f.states[userID]
	if !ok {
		return nil, rewards.ErrStateNotFound
	}
	return st, nil
}

func (f *fakeStates) Upsert(_ context.Context, s *rewards.State) error {
	f.states[s.UserID] = s
	return nil
}

type fakeLedgerStore struct {
	entries []*rewards.LedgerEntry
}

func (s *fakeLedgerStore) Get(_ context.Context, userID shared.UserID, reason rewards.Reason, sourceID string) (*rewards.LedgerEntry, error) {
	for _, e := range s.entries {
		if e.UserID == userID && e.Reason == reason && e.SourceID == sourceID {
			return e, nil
		}
	}
	return nil, rewards.ErrLedgerEntryNotFound
}

func (s *fakeLedgerStore) Append(_ context.Context, e *rewards.LedgerEntry) error {
	for _, prior := range s.entries {
		if prior.UserID == e.UserID && prior.Reason == e.Reason && prior.SourceID == e.SourceID {
			return shared.ErrAlreadyExists
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeLedgerStore) SumByUser(_ context.Context, userID shared.UserID) (int, error) {
	sum := 0
	for _, e := range s.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (s *fakeLedgerStore) ListByUser(_ context.Context, userID shared.UserID) ([]*rewards.LedgerEntry, error) {
	var out []*rewards.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// passTx runs the function directly, with no real transaction.
type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordBus collects published events for assertions.
type recordBus struct {
	events []shared.Event
}

func (b *recordBus) Publish(_ context.Context, events ...shared.Event) error {
	b.events = append(b.events, events...)
	return nil
}

func (b *recordBus) typesSeen() map[shared.EventType]int {
	m := map[shared.EventType]int{}
	for _, e := range b.events {
		m[e.EventType()]++
	}
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// TEST ENVIRONMENT
// ══════════════════════════════════════════════════════════════════════════════

type flowEnv struct {
	flow        *ProgressFlow
	subjects    *fakeSubjects
	entries     *fakeEntries
	achDefs     *fakeAchievementDefs
	achRows     *fakeAchievements
	chDefs      *fakeChallengeDefs
	chRows      *fakeChallenges
	states      *fakeStates
	ledgerStore *fakeLedgerStore
	bus         *recordBus

	now time.Time
}

const (
	testSubjectID shared.SubjectID = "subject-1"
	testOwnerID   shared.UserID    = "owner-1"
)

func newFlowEnv(t *testing.T, config ProgressFlowConfig) *flowEnv {
	t.Helper()

	env := &flowEnv{
		subjects:    &fakeSubjects{subjects: map[shared.SubjectID]*subject.Subject{}},
		entries:     &fakeEntries{},
		achDefs:     &fakeAchievementDefs{},
		achRows:     &fakeAchievements{rows: map[string]*achievement.UserAchievement{}},
		chDefs:      &fakeChallengeDefs{},
		chRows:      &fakeChallenges{rows: map[string]*challenge.UserChallenge{}},
		states:      &fakeStates{states: map[shared.UserID]*rewards.State{}},
		ledgerStore: &fakeLedgerStore{},
		bus:         &recordBus{},
		now:         time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	clock := func() time.Time { return env.now }

	env.subjects.subjects[testSubjectID] = &subject.Subject{
		ID:       testSubjectID,
		OwnerID:  testOwnerID,
		Name:     "Rex",
		Timezone: "UTC",
	}

	env.flow = NewProgressFlow(ProgressFlowDeps{
		Subjects:        env.subjects,
		Entries:         env.entries,
		AchievementDefs: env.achDefs,
		Achievements:    env.achRows,
		ChallengeDefs:   env.chDefs,
		Challenges:      env.chRows,
		States:          env.states,
		Ledger:          rewards.NewLedger(env.ledgerStore, newID, clock),
		Tx:              passTx{},
		Locks:           NewUserLocks(),
		EventBus:        env.bus,
		NewID:           newID,
		Clock:           clock,
	}, config)

	return env
}

// submit logs one entry at the environment's current time.
func (env *flowEnv) submit(t *testing.T, key string) *SubmitResult {
	t.Helper()
	result, err := env.flow.Execute(context.Background(), SubmitInput{
		SubjectID:  testSubjectID,
		OccurredAt: env.now.Add(-time.Minute),
		Attributes: entry.Attributes{
			Consistency: entry.ConsistencySolid,
			Color:       entry.ColorBrown,
		},
		IdempotencyKey: key,
		CorrelationID:  "corr-" + key,
	})
	assert.NoError(t, err)
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestExecute_FirstSubmissionUnlocksMilestone(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.achDefs.defs = []achievement.Definition{{
		ID:           "first-entry",
		Title:        "Первый шаг",
		Type:         achievement.TypeMilestone,
		Condition:    rule.ConditionSpec{Kind: rule.KindTotalCount},
		TriggerValue: 1,
		CoinReward:   10,
		XPBonus:      50,
	}}

	result := env.submit(t, "key-1")

	assert.False(t, result.Duplicate)
	assert.Equal(t, 1, result.Streak.Current)
	assert.Len(t, result.UnlockedAchievements, 1)
	assert.Equal(t, "first-entry", result.UnlockedAchievements[0].Definition.ID)
	assert.Equal(t, 10, result.CoinsAwarded)
	assert.Equal(t, 50, result.XPAwarded)
	assert.Equal(t, 0, result.LevelsGained)
	assert.EqualValues(t, 10, result.State.CoinBalance)
	assert.EqualValues(t, 50, result.State.Experience)

	// One ledger entry backs the credited coins.
	assert.Len(t, env.ledgerStore.entries, 1)
	assert.Equal(t, 10, env.ledgerStore.entries[0].Amount)

	seen := env.bus.typesSeen()
	assert.Equal(t, 1, seen[shared.EventEntryLogged])
	assert.Equal(t, 1, seen[shared.EventAchievementUnlocked])
	assert.Equal(t, 1, seen[shared.EventCoinsCredited])
	assert.Equal(t, 1, seen[shared.EventStreakUpdated])
}

func TestExecute_SevenDayStreakUnlock(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.achDefs.defs = []achievement.Definition{{
		ID:           "week-streak",
		Title:        "Неделя подряд",
		Type:         achievement.TypeStreak,
		Condition:    rule.ConditionSpec{Kind: rule.KindStreakAtLeast},
		TriggerValue: 7,
		CoinReward:   100,
		XPBonus:      200,
	}}

	var last *SubmitResult
	for day := 0; day < 7; day++ {
		last = env.submit(t, fmt.Sprintf("key-%d", day))
		if day < 6 {
			assert.Empty(t, last.UnlockedAchievements, "day %d must not unlock yet", day)
			env.now = env.now.AddDate(0, 0, 1)
		}
	}

	assert.Equal(t, 7, last.Streak.Current)
	assert.Len(t, last.UnlockedAchievements, 1)
	assert.Equal(t, "week-streak", last.UnlockedAchievements[0].Definition.ID)
	assert.Equal(t, 100, last.CoinsAwarded)
	assert.Equal(t, 1, last.LevelsGained) // 200 XP crosses the level-1 threshold
}

func TestExecute_DuplicateKeyReturnsOriginalOutcome(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.achDefs.defs = []achievement.Definition{{
		ID:           "first-entry",
		Title:        "Первый шаг",
		Type:         achievement.TypeMilestone,
		Condition:    rule.ConditionSpec{Kind: rule.KindTotalCount},
		TriggerValue: 1,
		CoinReward:   10,
	}}

	first := env.submit(t, "key-1")
	replay := env.submit(t, "key-1")

	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.EntryID, replay.EntryID)
	assert.Equal(t, first.Streak.Current, replay.Streak.Current)

	// No second entry, no second credit.
	assert.Len(t, env.entries.entries, 1)
	assert.Len(t, env.ledgerStore.entries, 1)
	assert.EqualValues(t, 10, replay.State.CoinBalance)
}

func TestExecute_AbsencePenaltyClampedToBalance(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.achDefs.defs = []achievement.Definition{
		{
			ID:           "first-entry",
			Title:        "Первый шаг",
			Type:         achievement.TypeMilestone,
			Condition:    rule.ConditionSpec{Kind: rule.KindTotalCount},
			TriggerValue: 1,
			CoinReward:   10,
		},
		{
			ID:            "gap3",
			Title:         "Пропал на три дня",
			Type:          achievement.TypeAbsence,
			IsNegative:    true,
			PenaltyPoints: 50,
			Condition:     rule.ConditionSpec{Kind: rule.KindAbsence},
			TriggerValue:  3,
		},
	}

	first := env.submit(t, "key-1")
	assert.Equal(t, 10, first.CoinsAwarded)
	assert.Empty(t, first.Penalties)

	// The subject returns after a 3-day gap.
	env.now = env.now.AddDate(0, 0, 4)
	back := env.submit(t, "key-2")

	assert.Len(t, back.Penalties, 1)
	// The penalty is 50 but only 10 coins exist: the debit is clamped.
	assert.Equal(t, 10, back.CoinsPenalized)
	assert.EqualValues(t, 0, back.State.CoinBalance)
	assert.Equal(t, 1, back.Streak.Current)

	seen := env.bus.typesSeen()
	assert.Equal(t, 1, seen[shared.EventAchievementPenalized])
	assert.Equal(t, 1, seen[shared.EventCoinsDebited])
}

func TestExecute_AbsencePenaltyNotRepeatedWithinWindow(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.achDefs.defs = []achievement.Definition{{
		ID:            "gap3",
		Title:         "Пропал на три дня",
		Type:          achievement.TypeAbsence,
		IsNegative:    true,
		PenaltyPoints: 50,
		Condition:     rule.ConditionSpec{Kind: rule.KindAbsence},
		TriggerValue:  3,
	}}

	env.submit(t, "key-1")
	env.now = env.now.AddDate(0, 0, 4)

	back := env.submit(t, "key-2")
	assert.Len(t, back.Penalties, 1)

	// A second submission the same day sees no gap anymore.
	env.now = env.now.Add(time.Hour)
	again := env.submit(t, "key-3")
	assert.Empty(t, again.Penalties)
}

func TestExecute_ChallengeCompletionCreditsPoints(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.chDefs.defs = []challenge.Definition{{
		ID:             "weekly-2",
		Title:          "Дважды за неделю",
		StartDate:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 6, 7, 0, 0, 0, 0, time.UTC),
		Type:           challenge.TypeWeekly,
		Condition:      rule.ConditionSpec{Kind: rule.KindTotalCount},
		ConditionValue: 2,
		Points:         30,
	}}

	first := env.submit(t, "key-1")
	assert.Empty(t, first.CompletedChallenges)

	env.now = env.now.AddDate(0, 0, 1)
	second := env.submit(t, "key-2")

	assert.Len(t, second.CompletedChallenges, 1)
	assert.Equal(t, "weekly-2", second.CompletedChallenges[0].Definition.ID)
	assert.Equal(t, 30, second.CoinsAwarded)
	assert.Equal(t, 30, second.XPAwarded)
	assert.EqualValues(t, 30, second.State.CoinBalance)

	seen := env.bus.typesSeen()
	assert.Equal(t, 1, seen[shared.EventChallengeCompleted])

	// A third entry after completion changes nothing for the challenge.
	env.now = env.now.AddDate(0, 0, 1)
	third := env.submit(t, "key-3")
	assert.Empty(t, third.CompletedChallenges)
	assert.EqualValues(t, 30, third.State.CoinBalance)
}

func TestExecute_BackdatedEventInClosedWindowNotCounted(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.chDefs.defs = []challenge.Definition{{
		ID:             "may-week",
		Title:          "Майская неделя",
		StartDate:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC),
		Type:           challenge.TypeWeekly,
		Condition:      rule.ConditionSpec{Kind: rule.KindTotalCount},
		ConditionValue: 1,
		Points:         50,
	}}

	// Today is June 1st; the event is backdated into the settled May
	// window. It lands in the log but must not accrue challenge progress.
	result, err := env.flow.Execute(context.Background(), SubmitInput{
		SubjectID:      testSubjectID,
		OccurredAt:     time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC),
		Attributes:     entry.Attributes{Consistency: entry.ConsistencySolid, Color: entry.ColorBrown},
		IdempotencyKey: "key-late",
	})
	assert.NoError(t, err)

	assert.Empty(t, result.CompletedChallenges)
	assert.Equal(t, 0, result.CoinsAwarded)
	assert.EqualValues(t, 0, result.State.CoinBalance)
	assert.Empty(t, env.ledgerStore.entries)
	assert.Len(t, env.entries.entries, 1)
	assert.Empty(t, env.chRows.rows)
}

func TestExecute_ChallengeOutsideWindowIgnored(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())
	env.chDefs.defs = []challenge.Definition{{
		ID:             "past",
		Title:          "Прошедший челлендж",
		StartDate:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC),
		Type:           challenge.TypeWeekly,
		Condition:      rule.ConditionSpec{Kind: rule.KindTotalCount},
		ConditionValue: 1,
		Points:         30,
	}}

	result := env.submit(t, "key-1")
	assert.Empty(t, result.CompletedChallenges)
	assert.Equal(t, 0, result.CoinsAwarded)
}

func TestExecute_SubjectNotFound(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())

	_, err := env.flow.Execute(context.Background(), SubmitInput{
		SubjectID:      "ghost",
		OccurredAt:     env.now,
		Attributes:     entry.Attributes{Consistency: entry.ConsistencySolid, Color: entry.ColorBrown},
		IdempotencyKey: "key-1",
	})

	assert.ErrorIs(t, err, subject.ErrSubjectNotFound)

	var flowErr *ProgressFlowError
	assert.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepLoadSubject, flowErr.Step)
}

func TestExecute_ValidationRejected(t *testing.T) {
	env := newFlowEnv(t, DefaultProgressFlowConfig())

	_, err := env.flow.Execute(context.Background(), SubmitInput{
		SubjectID:  testSubjectID,
		OccurredAt: env.now,
		Attributes: entry.Attributes{Consistency: entry.ConsistencySolid, Color: entry.ColorBrown},
	})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	// Nothing was written.
	assert.Empty(t, env.entries.entries)
	assert.Empty(t, env.ledgerStore.entries)
}
