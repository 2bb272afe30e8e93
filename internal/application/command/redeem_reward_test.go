package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

type memStates struct {
	states map[shared.UserID]*rewards.State
}

func (f *memStates) Get(_ context.Context, userID shared.UserID) (*rewards.State, error) {
	st, ok := f.states[userID]
	if !ok {
		return nil, rewards.ErrStateNotFound
	}
	return st, nil
}

func (f *memStates) Upsert(_ context.Context, s *rewards.State) error {
	f.states[s.UserID] = s
	return nil
}

type memLedgerStore struct {
	entries []*rewards.LedgerEntry
}

func (s *memLedgerStore) Get(_ context.Context, userID shared.UserID, reason rewards.Reason, sourceID string) (*rewards.LedgerEntry, error) {
	for _, e := range s.entries {
		if e.UserID == userID && e.Reason == reason && e.SourceID == sourceID {
			return e, nil
		}
	}
	return nil, rewards.ErrLedgerEntryNotFound
}

func (s *memLedgerStore) Append(_ context.Context, e *rewards.LedgerEntry) error {
	for _, prior := range s.entries {
		if prior.UserID == e.UserID && prior.Reason == e.Reason && prior.SourceID == e.SourceID {
			return shared.ErrAlreadyExists
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memLedgerStore) SumByUser(_ context.Context, userID shared.UserID) (int, error) {
	sum := 0
	for _, e := range s.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (s *memLedgerStore) ListByUser(_ context.Context, userID shared.UserID) ([]*rewards.LedgerEntry, error) {
	var out []*rewards.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

type memTx struct{}

func (memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memBus struct {
	events []shared.Event
}

func (b *memBus) Publish(_ context.Context, events ...shared.Event) error {
	b.events = append(b.events, events...)
	return nil
}

type redeemEnv struct {
	handler *RedeemRewardHandler
	ledger  *rewards.Ledger
	store   *memLedgerStore
	states  *memStates
	bus     *memBus
}

func newRedeemEnv() *redeemEnv {
	store := &memLedgerStore{}
	states := &memStates{states: map[shared.UserID]*rewards.State{}}
	bus := &memBus{}

	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	clock := func() time.Time {
		return time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	}

	ledger := rewards.NewLedger(store, newID, clock)
	handler := NewRedeemRewardHandler(states, ledger, memTx{}, saga.NewUserLocks(), bus, nil, clock)

	return &redeemEnv{handler: handler, ledger: ledger, store: store, states: states, bus: bus}
}

func TestRedeemReward_Success(t *testing.T) {
	env := newRedeemEnv()
	ctx := context.Background()
	_, _, err := env.ledger.Credit(ctx, "user-1", 100, rewards.ReasonAchievement, "ach-1")
	assert.NoError(t, err)

	result, err := env.handler.Handle(ctx, RedeemRewardCommand{
		UserID:       "user-1",
		RedemptionID: "order-1",
		Cost:         40,
	})

	assert.NoError(t, err)
	assert.True(t, result.Debited)
	assert.Equal(t, 60, result.NewBalance)
	assert.Len(t, env.store.entries, 2)

	// The state mirrors the ledger sum.
	st := env.states.states["user-1"]
	assert.NotNil(t, st)
	assert.EqualValues(t, 60, st.CoinBalance)

	assert.Len(t, env.bus.events, 1)
	assert.Equal(t, shared.EventCoinsDebited, env.bus.events[0].EventType())
}

func TestRedeemReward_InsufficientFundsDeclined(t *testing.T) {
	env := newRedeemEnv()
	ctx := context.Background()
	_, _, err := env.ledger.Credit(ctx, "user-1", 30, rewards.ReasonAchievement, "ach-1")
	assert.NoError(t, err)

	_, err = env.handler.Handle(ctx, RedeemRewardCommand{
		UserID:       "user-1",
		RedemptionID: "order-1",
		Cost:         50,
	})

	assert.ErrorIs(t, err, shared.ErrInsufficientFunds)

	// No debit was recorded, the balance is untouched.
	assert.Len(t, env.store.entries, 1)
	balance, _ := env.ledger.Balance(ctx, "user-1")
	assert.EqualValues(t, 30, balance)

	// The decline is observable on the bus.
	assert.Len(t, env.bus.events, 1)
	assert.Equal(t, shared.EventRedemptionDeclined, env.bus.events[0].EventType())
}

func TestRedeemReward_IdempotentReplay(t *testing.T) {
	env := newRedeemEnv()
	ctx := context.Background()
	_, _, err := env.ledger.Credit(ctx, "user-1", 100, rewards.ReasonAchievement, "ach-1")
	assert.NoError(t, err)

	first, err := env.handler.Handle(ctx, RedeemRewardCommand{
		UserID:       "user-1",
		RedemptionID: "order-1",
		Cost:         40,
	})
	assert.NoError(t, err)
	assert.True(t, first.Debited)

	replay, err := env.handler.Handle(ctx, RedeemRewardCommand{
		UserID:       "user-1",
		RedemptionID: "order-1",
		Cost:         40,
	})
	assert.NoError(t, err)
	assert.False(t, replay.Debited)
	assert.Equal(t, 60, replay.NewBalance)

	// One credit plus one debit: the replay added nothing.
	assert.Len(t, env.store.entries, 2)
}

func TestRedeemReward_ConcurrentRedemptionsNeverOverdraw(t *testing.T) {
	env := newRedeemEnv()
	ctx := context.Background()
	_, _, err := env.ledger.Credit(ctx, "user-1", 100, rewards.ReasonAchievement, "ach-1")
	assert.NoError(t, err)

	// Two redemptions race for the same balance. Their combined cost
	// exceeds it, so only one may go through.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.handler.Handle(ctx, RedeemRewardCommand{
				UserID:       "user-1",
				RedemptionID: fmt.Sprintf("order-%d", i),
				Cost:         60,
			})
		}(i)
	}
	wg.Wait()

	succeeded, declined := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, shared.ErrInsufficientFunds):
			declined++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, declined)

	// One credit plus exactly one debit, balance never negative.
	assert.Len(t, env.store.entries, 2)
	balance, _ := env.ledger.Balance(ctx, "user-1")
	assert.EqualValues(t, 40, balance)
}

func TestRedeemReward_Validation(t *testing.T) {
	env := newRedeemEnv()
	ctx := context.Background()

	_, err := env.handler.Handle(ctx, RedeemRewardCommand{RedemptionID: "order-1", Cost: 10})
	assert.Error(t, err)

	_, err = env.handler.Handle(ctx, RedeemRewardCommand{UserID: "user-1", Cost: 10})
	assert.Error(t, err)

	_, err = env.handler.Handle(ctx, RedeemRewardCommand{UserID: "user-1", RedemptionID: "order-1", Cost: 0})
	assert.Error(t, err)
}
