package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM REWARD COMMAND
// Spends coins on a store item. Unlike penalties, redemptions are strict:
// a cost above the current balance declines the whole redemption instead
// of clamping it.
// ══════════════════════════════════════════════════════════════════════════════

// RedeemRewardCommand contains the data of one redemption.
type RedeemRewardCommand struct {
	// UserID is the account spending the coins.
	UserID string

	// RedemptionID identifies this redemption. Retrying with the same ID
	// returns the original outcome instead of debiting twice.
	RedemptionID string

	// Cost is the price in coins.
	Cost int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RedeemRewardCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("redeem_reward: user_id is required")
	}
	if c.RedemptionID == "" {
		return errors.New("redeem_reward: redemption_id is required")
	}
	if c.Cost <= 0 {
		return errors.New("redeem_reward: cost must be positive")
	}
	return nil
}

// RedeemRewardResult contains the result of a redemption.
type RedeemRewardResult struct {
	// UserID is the account the coins were debited from.
	UserID string

	// RedemptionID identifies the redemption.
	RedemptionID string

	// Debited is true when this call created the ledger entry
	// (false for idempotent replays).
	Debited bool

	// NewBalance is the balance after the redemption.
	NewBalance int

	// ProcessedAt is when the redemption completed.
	ProcessedAt time.Time
}

// RedeemRewardHandler handles the RedeemRewardCommand.
type RedeemRewardHandler struct {
	states   rewards.StateRepository
	ledger   *rewards.Ledger
	tx       saga.Transactor
	locks    *saga.UserLocks
	eventBus shared.EventPublisher
	curve    rewards.LevelCurve
	clock    shared.Clock
}

// NewRedeemRewardHandler creates a new RedeemRewardHandler.
func NewRedeemRewardHandler(
	states rewards.StateRepository,
	ledger *rewards.Ledger,
	tx saga.Transactor,
	locks *saga.UserLocks,
	eventBus shared.EventPublisher,
	curve rewards.LevelCurve,
	clock shared.Clock,
) *RedeemRewardHandler {
	if clock == nil {
		clock = shared.SystemClock
	}
	if eventBus == nil {
		eventBus = shared.NoopPublisher{}
	}
	if curve == nil {
		curve = rewards.DefaultLevelCurve(rewards.DefaultBaseXP)
	}
	return &RedeemRewardHandler{
		states:   states,
		ledger:   ledger,
		tx:       tx,
		locks:    locks,
		eventBus: eventBus,
		curve:    curve,
		clock:    clock,
	}
}

// Handle executes the redeem reward command. On insufficient funds it
// publishes a declined event and returns shared.ErrInsufficientFunds;
// no ledger entry is created and the balance is unchanged.
func (h *RedeemRewardHandler) Handle(ctx context.Context, cmd RedeemRewardCommand) (*RedeemRewardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}

	unlock := h.locks.Lock(userID.String())
	defer unlock()

	var (
		result *RedeemRewardResult
		events []shared.Event
	)

	txErr := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		ledgerEntry, created, err := h.ledger.Debit(ctx, userID, shared.Coins(cmd.Cost), rewards.ReasonRedemption, cmd.RedemptionID)
		if err != nil {
			if errors.Is(err, shared.ErrInsufficientFunds) {
				balance, balErr := h.ledger.Balance(ctx, userID)
				if balErr != nil {
					return balErr
				}
				ev := shared.RedemptionDeclinedEvent{
					BaseEvent:    shared.NewBaseEvent(shared.EventRedemptionDeclined, userID.String()),
					RedemptionID: cmd.RedemptionID,
					Cost:         cmd.Cost,
					Balance:      balance.Int(),
				}
				ev.CorrelationID = cmd.CorrelationID
				events = append(events, ev)
			}
			return err
		}

		balance, err := h.ledger.Balance(ctx, userID)
		if err != nil {
			return err
		}

		st, err := h.states.Get(ctx, userID)
		if err != nil {
			if !errors.Is(err, rewards.ErrStateNotFound) {
				return fmt.Errorf("redeem_reward: failed to load rewards state: %w", err)
			}
			st = rewards.NewState(userID, h.curve, h.clock())
		}
		st.CoinBalance = balance
		st.UpdatedAt = h.clock()

		if err := h.states.Upsert(ctx, st); err != nil {
			return fmt.Errorf("redeem_reward: failed to save rewards state: %w", err)
		}

		if created {
			ev := shared.CoinsDebitedEvent{
				BaseEvent:  shared.NewBaseEvent(shared.EventCoinsDebited, userID.String()),
				Amount:     -ledgerEntry.Amount,
				Reason:     string(rewards.ReasonRedemption),
				SourceID:   cmd.RedemptionID,
				NewBalance: balance.Int(),
			}
			ev.CorrelationID = cmd.CorrelationID
			events = append(events, ev)
		}

		result = &RedeemRewardResult{
			UserID:       userID.String(),
			RedemptionID: cmd.RedemptionID,
			Debited:      created,
			NewBalance:   balance.Int(),
		}
		return nil
	})

	// Declined redemptions still publish their event after rollback.
	if len(events) > 0 {
		_ = h.eventBus.Publish(ctx, events...)
	}

	if txErr != nil {
		return nil, fmt.Errorf("redeem_reward: %w", txErr)
	}

	result.ProcessedAt = h.clock()
	return result, nil
}
