package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/challenge"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE DEFINITION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeDefinitionRepository implements challenge.DefinitionRepository
// for PostgreSQL.
type ChallengeDefinitionRepository struct {
	conn *Connection
}

// NewChallengeDefinitionRepository creates a new repository.
func NewChallengeDefinitionRepository(conn *Connection) *ChallengeDefinitionRepository {
	return &ChallengeDefinitionRepository{conn: conn}
}

const challengeDefinitionColumns = `
	id, title, start_date, end_date, type,
	condition_kind, condition_attribute, condition_match, condition_value, points
`

// ListDefinitions returns all challenge definitions.
func (r *ChallengeDefinitionRepository) ListDefinitions(ctx context.Context) ([]challenge.Definition, error) {
	query := `SELECT ` + challengeDefinitionColumns + ` FROM challenge_definitions ORDER BY start_date, id`

	rows, err := r.conn.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenge definitions: %w", err)
	}
	defer rows.Close()

	return r.collectDefinitions(rows)
}

// ListActiveDefinitions returns definitions whose window contains the
// moment at. Window boundaries here are coarse UTC days; the tracker
// re-checks exact containment in the subject's timezone.
func (r *ChallengeDefinitionRepository) ListActiveDefinitions(ctx context.Context, at time.Time) ([]challenge.Definition, error) {
	query := `
		SELECT ` + challengeDefinitionColumns + `
		FROM challenge_definitions
		WHERE start_date - 1 <= $1::date AND end_date + 1 >= $1::date
		ORDER BY start_date, id
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query active challenge definitions: %w", err)
	}
	defer rows.Close()

	return r.collectDefinitions(rows)
}

// GetDefinition returns a definition by ID.
func (r *ChallengeDefinitionRepository) GetDefinition(ctx context.Context, id string) (challenge.Definition, error) {
	query := `SELECT ` + challengeDefinitionColumns + ` FROM challenge_definitions WHERE id = $1`

	row := r.conn.Querier(ctx).QueryRow(ctx, query, id)
	return r.scanDefinition(row)
}

// collectDefinitions collects all rows into definitions.
func (r *ChallengeDefinitionRepository) collectDefinitions(rows pgx.Rows) ([]challenge.Definition, error) {
	var defs []challenge.Definition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// scanDefinition scans a definition from a row.
func (r *ChallengeDefinitionRepository) scanDefinition(row pgx.Row) (challenge.Definition, error) {
	var (
		def           challenge.Definition
		defType       string
		conditionKind string
	)

	err := row.Scan(
		&def.ID,
		&def.Title,
		&def.StartDate,
		&def.EndDate,
		&defType,
		&conditionKind,
		&def.Condition.Attribute,
		&def.Condition.Match,
		&def.ConditionValue,
		&def.Points,
	)
	if err != nil {
		if IsNoRows(err) {
			return challenge.Definition{}, challenge.ErrDefinitionNotFound
		}
		return challenge.Definition{}, fmt.Errorf("failed to scan challenge definition: %w", err)
	}

	def.Type = challenge.Type(defType)
	def.Condition.Kind = rule.Kind(conditionKind)

	return def, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER CHALLENGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeRepository implements challenge.Repository for PostgreSQL.
type ChallengeRepository struct {
	conn *Connection
}

// NewChallengeRepository creates a new ChallengeRepository.
func NewChallengeRepository(conn *Connection) *ChallengeRepository {
	return &ChallengeRepository{conn: conn}
}

// GetByUser returns all progress rows of a user.
func (r *ChallengeRepository) GetByUser(ctx context.Context, userID shared.UserID) ([]*challenge.UserChallenge, error) {
	query := `
		SELECT user_id, challenge_id, progress, completed, completed_at,
		       created_at, updated_at
		FROM user_challenges
		WHERE user_id = $1
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query user challenges: %w", err)
	}
	defer rows.Close()

	var result []*challenge.UserChallenge
	for rows.Next() {
		var (
			uc  challenge.UserChallenge
			uid string
		)
		err := rows.Scan(
			&uid,
			&uc.ChallengeID,
			&uc.Progress,
			&uc.Completed,
			&uc.CompletedAt,
			&uc.CreatedAt,
			&uc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user challenge: %w", err)
		}
		uc.UserID = shared.UserID(uid)
		result = append(result, &uc)
	}

	return result, rows.Err()
}

// Upsert saves a progress row. A completed row never reverts and progress
// never decreases, even under concurrent upserts.
func (r *ChallengeRepository) Upsert(ctx context.Context, uc *challenge.UserChallenge) error {
	query := `
		INSERT INTO user_challenges (
			user_id, challenge_id, progress, completed, completed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, challenge_id) DO UPDATE SET
			progress = GREATEST(user_challenges.progress, EXCLUDED.progress),
			completed = user_challenges.completed OR EXCLUDED.completed,
			completed_at = COALESCE(user_challenges.completed_at, EXCLUDED.completed_at),
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		uc.UserID.String(),
		uc.ChallengeID,
		uc.Progress,
		uc.Completed,
		uc.CompletedAt,
		uc.CreatedAt,
		uc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user challenge: %w", err)
	}

	return nil
}
