package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/entry"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY REPOSITORY IMPLEMENTATION
// The entry log is append-only: this repository exposes no update or delete.
// ══════════════════════════════════════════════════════════════════════════════

// EntryRepository implements entry.Repository for PostgreSQL.
type EntryRepository struct {
	conn *Connection
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(conn *Connection) *EntryRepository {
	return &EntryRepository{conn: conn}
}

// Append appends an entry to the log.
func (r *EntryRepository) Append(ctx context.Context, e *entry.Entry) error {
	query := `
		INSERT INTO entries (
			id, subject_id, occurred_at, consistency, color, location, notes,
			idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		e.ID,
		e.SubjectID.String(),
		e.OccurredAt,
		string(e.Attributes.Consistency),
		string(e.Attributes.Color),
		e.Attributes.Location,
		e.Attributes.Notes,
		e.IdempotencyKey,
		e.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return entry.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}

	return nil
}

// GetByIdempotencyKey returns the entry recorded under the given key.
func (r *EntryRepository) GetByIdempotencyKey(ctx context.Context, subjectID shared.SubjectID, key string) (*entry.Entry, error) {
	query := `
		SELECT id, subject_id, occurred_at, consistency, color, location, notes,
		       idempotency_key, created_at
		FROM entries
		WHERE subject_id = $1 AND idempotency_key = $2
	`

	row := r.conn.Querier(ctx).QueryRow(ctx, query, subjectID.String(), key)
	return r.scanEntry(row)
}

// ListBySubject returns all entries of a subject ordered by occurred_at.
func (r *EntryRepository) ListBySubject(ctx context.Context, subjectID shared.SubjectID) ([]*entry.Entry, error) {
	query := `
		SELECT id, subject_id, occurred_at, consistency, color, location, notes,
		       idempotency_key, created_at
		FROM entries
		WHERE subject_id = $1
		ORDER BY occurred_at
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, subjectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// ListBySubjectBetween returns entries with occurred_at in [from, to].
func (r *EntryRepository) ListBySubjectBetween(ctx context.Context, subjectID shared.SubjectID, from, to time.Time) ([]*entry.Entry, error) {
	query := `
		SELECT id, subject_id, occurred_at, consistency, color, location, notes,
		       idempotency_key, created_at
		FROM entries
		WHERE subject_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
		ORDER BY occurred_at
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, subjectID.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// LastBySubject returns the most recent entry of a subject.
func (r *EntryRepository) LastBySubject(ctx context.Context, subjectID shared.SubjectID) (*entry.Entry, error) {
	query := `
		SELECT id, subject_id, occurred_at, consistency, color, location, notes,
		       idempotency_key, created_at
		FROM entries
		WHERE subject_id = $1
		ORDER BY occurred_at DESC
		LIMIT 1
	`

	row := r.conn.Querier(ctx).QueryRow(ctx, query, subjectID.String())
	return r.scanEntry(row)
}

// collectEntries collects all rows into entries.
func (r *EntryRepository) collectEntries(rows pgx.Rows) ([]*entry.Entry, error) {
	var entries []*entry.Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanEntry scans an entry from a row.
func (r *EntryRepository) scanEntry(row pgx.Row) (*entry.Entry, error) {
	var (
		e           entry.Entry
		subjectID   string
		consistency string
		color       string
	)

	err := row.Scan(
		&e.ID,
		&subjectID,
		&e.OccurredAt,
		&consistency,
		&color,
		&e.Attributes.Location,
		&e.Attributes.Notes,
		&e.IdempotencyKey,
		&e.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, entry.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.SubjectID = shared.SubjectID(subjectID)
	e.Attributes.Consistency = entry.Consistency(consistency)
	e.Attributes.Color = entry.Color(color)

	return &e, nil
}
