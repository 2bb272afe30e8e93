package postgres

import (
	"context"
	"fmt"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS STATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RewardsStateRepository implements rewards.StateRepository for PostgreSQL.
type RewardsStateRepository struct {
	conn *Connection
}

// NewRewardsStateRepository creates a new RewardsStateRepository.
func NewRewardsStateRepository(conn *Connection) *RewardsStateRepository {
	return &RewardsStateRepository{conn: conn}
}

// Get returns the rewards state of a user.
func (r *RewardsStateRepository) Get(ctx context.Context, userID shared.UserID) (*rewards.State, error) {
	query := `
		SELECT user_id, coin_balance, level, experience, next_level_exp, updated_at
		FROM rewards_states
		WHERE user_id = $1
	`

	var (
		st           rewards.State
		uid          string
		coinBalance  int
		level        int
		experience   int
		nextLevelExp int
	)

	err := r.conn.Querier(ctx).QueryRow(ctx, query, userID.String()).Scan(
		&uid,
		&coinBalance,
		&level,
		&experience,
		&nextLevelExp,
		&st.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, rewards.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to scan rewards state: %w", err)
	}

	st.UserID = shared.UserID(uid)
	st.CoinBalance = shared.Coins(coinBalance)
	st.Level = shared.Level(level)
	st.Experience = shared.XP(experience)
	st.NextLevelExp = shared.XP(nextLevelExp)

	return &st, nil
}

// Upsert saves the rewards state.
func (r *RewardsStateRepository) Upsert(ctx context.Context, s *rewards.State) error {
	query := `
		INSERT INTO rewards_states (
			user_id, coin_balance, level, experience, next_level_exp, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			coin_balance = EXCLUDED.coin_balance,
			level = EXCLUDED.level,
			experience = EXCLUDED.experience,
			next_level_exp = EXCLUDED.next_level_exp,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		s.UserID.String(),
		s.CoinBalance.Int(),
		s.Level.Int(),
		int(s.Experience),
		int(s.NextLevelExp),
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rewards state: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements rewards.LedgerStore for PostgreSQL.
// The table is append-only; the unique (user_id, reason, source_id) index
// backs ledger idempotency even across concurrent processes.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// Get returns the entry recorded under the idempotency triple.
func (r *LedgerRepository) Get(ctx context.Context, userID shared.UserID, reason rewards.Reason, sourceID string) (*rewards.LedgerEntry, error) {
	query := `
		SELECT id, user_id, amount, reason, source_id, created_at
		FROM ledger_entries
		WHERE user_id = $1 AND reason = $2 AND source_id = $3
	`

	var (
		e      rewards.LedgerEntry
		uid    string
		reas   string
	)

	err := r.conn.Querier(ctx).QueryRow(ctx, query, userID.String(), string(reason), sourceID).Scan(
		&e.ID,
		&uid,
		&e.Amount,
		&reas,
		&e.SourceID,
		&e.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, rewards.ErrLedgerEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.UserID = shared.UserID(uid)
	e.Reason = rewards.Reason(reas)

	return &e, nil
}

// Append appends a ledger entry.
func (r *LedgerRepository) Append(ctx context.Context, e *rewards.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, user_id, amount, reason, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		e.ID,
		e.UserID.String(),
		e.Amount,
		string(e.Reason),
		e.SourceID,
		e.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// SumByUser returns the sum of all entry amounts of a user.
func (r *LedgerRepository) SumByUser(ctx context.Context, userID shared.UserID) (int, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1`

	var sum int
	err := r.conn.Querier(ctx).QueryRow(ctx, query, userID.String()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	return sum, nil
}

// ListByUser returns entries of a user, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]*rewards.LedgerEntry, error) {
	query := `
		SELECT id, user_id, amount, reason, source_id, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*rewards.LedgerEntry
	for rows.Next() {
		var (
			e    rewards.LedgerEntry
			uid  string
			reas string
		)
		err := rows.Scan(&e.ID, &uid, &e.Amount, &reas, &e.SourceID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.UserID = shared.UserID(uid)
		e.Reason = rewards.Reason(reas)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
