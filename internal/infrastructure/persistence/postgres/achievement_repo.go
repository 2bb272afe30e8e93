package postgres

import (
	"context"
	"fmt"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/achievement"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rule"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT DEFINITION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementDefinitionRepository implements achievement.DefinitionRepository
// for PostgreSQL. Definitions are reference data seeded by migrations.
type AchievementDefinitionRepository struct {
	conn *Connection
}

// NewAchievementDefinitionRepository creates a new repository.
func NewAchievementDefinitionRepository(conn *Connection) *AchievementDefinitionRepository {
	return &AchievementDefinitionRepository{conn: conn}
}

const achievementDefinitionColumns = `
	id, title, description, type, is_negative, penalty_points, max_progress,
	condition_kind, condition_attribute, condition_match, trigger_value,
	coin_reward, xp_bonus
`

// ListDefinitions returns all achievement definitions.
func (r *AchievementDefinitionRepository) ListDefinitions(ctx context.Context) ([]achievement.Definition, error) {
	query := `SELECT ` + achievementDefinitionColumns + ` FROM achievement_definitions ORDER BY id`

	rows, err := r.conn.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievement definitions: %w", err)
	}
	defer rows.Close()

	var defs []achievement.Definition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// GetDefinition returns a definition by ID.
func (r *AchievementDefinitionRepository) GetDefinition(ctx context.Context, id string) (achievement.Definition, error) {
	query := `SELECT ` + achievementDefinitionColumns + ` FROM achievement_definitions WHERE id = $1`

	row := r.conn.Querier(ctx).QueryRow(ctx, query, id)
	def, err := r.scanDefinition(row)
	if err != nil {
		return achievement.Definition{}, err
	}
	return def, nil
}

// scanDefinition scans a definition from a row.
func (r *AchievementDefinitionRepository) scanDefinition(row pgx.Row) (achievement.Definition, error) {
	var (
		def           achievement.Definition
		defType       string
		conditionKind string
		penaltyPoints int
		coinReward    int
		xpBonus       int
	)

	err := row.Scan(
		&def.ID,
		&def.Title,
		&def.Description,
		&defType,
		&def.IsNegative,
		&penaltyPoints,
		&def.MaxProgress,
		&conditionKind,
		&def.Condition.Attribute,
		&def.Condition.Match,
		&def.TriggerValue,
		&coinReward,
		&xpBonus,
	)
	if err != nil {
		if IsNoRows(err) {
			return achievement.Definition{}, achievement.ErrDefinitionNotFound
		}
		return achievement.Definition{}, fmt.Errorf("failed to scan achievement definition: %w", err)
	}

	def.Type = achievement.Type(defType)
	def.Condition.Kind = rule.Kind(conditionKind)
	def.PenaltyPoints = shared.Coins(penaltyPoints)
	def.CoinReward = shared.Coins(coinReward)
	def.XPBonus = shared.XP(xpBonus)

	return def, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// GetByUser returns all progress rows of a user.
func (r *AchievementRepository) GetByUser(ctx context.Context, userID shared.UserID) ([]*achievement.UserAchievement, error) {
	query := `
		SELECT user_id, achievement_id, progress, unlocked, unlocked_at,
		       last_penalty_window, created_at, updated_at
		FROM user_achievements
		WHERE user_id = $1
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query user achievements: %w", err)
	}
	defer rows.Close()

	var result []*achievement.UserAchievement
	for rows.Next() {
		var (
			ua  achievement.UserAchievement
			uid string
		)
		err := rows.Scan(
			&uid,
			&ua.AchievementID,
			&ua.Progress,
			&ua.Unlocked,
			&ua.UnlockedAt,
			&ua.LastPenaltyWindow,
			&ua.CreatedAt,
			&ua.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user achievement: %w", err)
		}
		ua.UserID = shared.UserID(uid)
		result = append(result, &ua)
	}

	return result, rows.Err()
}

// Upsert saves a progress row. An unlocked row never reverts to locked
// and progress never decreases, even under concurrent upserts.
func (r *AchievementRepository) Upsert(ctx context.Context, ua *achievement.UserAchievement) error {
	query := `
		INSERT INTO user_achievements (
			user_id, achievement_id, progress, unlocked, unlocked_at,
			last_penalty_window, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress = GREATEST(user_achievements.progress, EXCLUDED.progress),
			unlocked = user_achievements.unlocked OR EXCLUDED.unlocked,
			unlocked_at = COALESCE(user_achievements.unlocked_at, EXCLUDED.unlocked_at),
			last_penalty_window = EXCLUDED.last_penalty_window,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		ua.UserID.String(),
		ua.AchievementID,
		ua.Progress,
		ua.Unlocked,
		ua.UnlockedAt,
		ua.LastPenaltyWindow,
		ua.CreatedAt,
		ua.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user achievement: %w", err)
	}

	return nil
}
