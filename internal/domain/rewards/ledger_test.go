package rewards

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// memLedgerStore - простое хранилище в памяти для тестов леджера.
type memLedgerStore struct {
	entries []*LedgerEntry
}

func (s *memLedgerStore) Get(_ context.Context, userID shared.UserID, reason Reason, sourceID string) (*LedgerEntry, error) {
	for _, e := range s.entries {
		if e.UserID == userID && e.Reason == reason && e.SourceID == sourceID {
			return e, nil
		}
	}
	return nil, ErrLedgerEntryNotFound
}

func (s *memLedgerStore) Append(_ context.Context, e *LedgerEntry) error {
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

func (s *memLedgerStore) ListByUser(_ context.Context, userID shared.UserID) ([]*LedgerEntry, error) {
	var out []*LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func testLedger() (*Ledger, *memLedgerStore) {
	store := &memLedgerStore{}
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("entry-%d", seq)
	}
	clock := func() time.Time {
		return time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	}
	return NewLedger(store, newID, clock), store
}

func TestCredit(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()

	e, created, err := ledger.Credit(ctx, "user-1", 50, ReasonAchievement, "ach-1")
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 50, e.Amount)

	balance, err := ledger.Balance(ctx, "user-1")
	assert.NoError(t, err)
	assert.EqualValues(t, 50, balance)
}

func TestCredit_IdempotentReplay(t *testing.T) {
	ledger, store := testLedger()
	ctx := context.Background()

	first, created, err := ledger.Credit(ctx, "user-1", 50, ReasonAchievement, "ach-1")
	assert.NoError(t, err)
	assert.True(t, created)

	replay, created, err := ledger.Credit(ctx, "user-1", 50, ReasonAchievement, "ach-1")
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, replay)
	assert.Len(t, store.entries, 1)

	// Same source, different reason: a separate fact.
	_, created, err = ledger.Credit(ctx, "user-1", 30, ReasonChallenge, "ach-1")
	assert.NoError(t, err)
	assert.True(t, created)
}

func TestDebit_InsufficientFunds(t *testing.T) {
	ledger, store := testLedger()
	ctx := context.Background()

	_, _, err := ledger.Credit(ctx, "user-1", 30, ReasonAchievement, "ach-1")
	assert.NoError(t, err)

	_, _, err = ledger.Debit(ctx, "user-1", 50, ReasonRedemption, "order-1")
	assert.ErrorIs(t, err, shared.ErrInsufficientFunds)

	// No entry was written, the balance is untouched.
	assert.Len(t, store.entries, 1)
	balance, _ := ledger.Balance(ctx, "user-1")
	assert.EqualValues(t, 30, balance)
}

func TestDebit_IdempotentReplay(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()

	_, _, err := ledger.Credit(ctx, "user-1", 100, ReasonAchievement, "ach-1")
	assert.NoError(t, err)

	first, created, err := ledger.Debit(ctx, "user-1", 40, ReasonRedemption, "order-1")
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, -40, first.Amount)

	// A replayed debit returns the prior entry and does not double-charge.
	replay, created, err := ledger.Debit(ctx, "user-1", 40, ReasonRedemption, "order-1")
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, replay)

	balance, _ := ledger.Balance(ctx, "user-1")
	assert.EqualValues(t, 60, balance)
}

func TestBalanceEqualsSumOfEntries(t *testing.T) {
	ledger, store := testLedger()
	ctx := context.Background()

	_, _, _ = ledger.Credit(ctx, "user-1", 100, ReasonAchievement, "ach-1")
	_, _, _ = ledger.Credit(ctx, "user-1", 30, ReasonChallenge, "ch-1")
	_, _, _ = ledger.Debit(ctx, "user-1", 45, ReasonRedemption, "order-1")

	sum := 0
	for _, e := range store.entries {
		sum += e.Amount
	}

	balance, err := ledger.Balance(ctx, "user-1")
	assert.NoError(t, err)
	assert.EqualValues(t, sum, balance)
	assert.EqualValues(t, 85, balance)
}

func TestEntries_NewestFirst(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()

	_, _, _ = ledger.Credit(ctx, "user-1", 10, ReasonAchievement, "a")
	_, _, _ = ledger.Credit(ctx, "user-1", 20, ReasonAchievement, "b")

	entries, err := ledger.Entries(ctx, "user-1")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].SourceID)
	assert.Equal(t, "a", entries[1].SourceID)
}

func TestValidation(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()

	_, _, err := ledger.Credit(ctx, "", 10, ReasonAchievement, "a")
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, _, err = ledger.Credit(ctx, "user-1", 0, ReasonAchievement, "a")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = ledger.Credit(ctx, "user-1", 10, "bribe", "a")
	assert.ErrorIs(t, err, ErrInvalidReason)

	_, _, err = ledger.Credit(ctx, "user-1", 10, ReasonAchievement, "  ")
	assert.ErrorIs(t, err, ErrInvalidSourceID)
}
