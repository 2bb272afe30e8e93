package postgres

import (
	"context"
	"fmt"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SubjectRepository implements subject.Repository for PostgreSQL.
type SubjectRepository struct {
	conn *Connection
}

// NewSubjectRepository creates a new SubjectRepository.
func NewSubjectRepository(conn *Connection) *SubjectRepository {
	return &SubjectRepository{conn: conn}
}

// Create creates a new subject.
func (r *SubjectRepository) Create(ctx context.Context, s *subject.Subject) error {
	query := `
		INSERT INTO subjects (id, owner_id, name, species, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		s.ID.String(),
		s.OwnerID.String(),
		s.Name,
		string(s.Species),
		s.Timezone,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return subject.ErrSubjectAlreadyExists
		}
		return fmt.Errorf("failed to create subject: %w", err)
	}

	return nil
}

// GetByID returns a subject by ID.
func (r *SubjectRepository) GetByID(ctx context.Context, id shared.SubjectID) (*subject.Subject, error) {
	query := `
		SELECT id, owner_id, name, species, timezone, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`

	row := r.conn.Querier(ctx).QueryRow(ctx, query, id.String())
	return r.scanSubject(row)
}

// GetByOwner returns all subjects of an owner, oldest first.
func (r *SubjectRepository) GetByOwner(ctx context.Context, ownerID shared.UserID) ([]*subject.Subject, error) {
	query := `
		SELECT id, owner_id, name, species, timezone, created_at, updated_at
		FROM subjects
		WHERE owner_id = $1
		ORDER BY created_at
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*subject.Subject
	for rows.Next() {
		s, err := r.scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}

	return subjects, rows.Err()
}

// ListOwners returns all owners that have at least one subject.
func (r *SubjectRepository) ListOwners(ctx context.Context) ([]shared.UserID, error) {
	query := `SELECT DISTINCT owner_id FROM subjects ORDER BY owner_id`

	rows, err := r.conn.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	var owners []shared.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, shared.UserID(id))
	}

	return owners, rows.Err()
}

// scanSubject scans a subject from a row.
func (r *SubjectRepository) scanSubject(row pgx.Row) (*subject.Subject, error) {
	var (
		s       subject.Subject
		id      string
		ownerID string
		species string
	)

	err := row.Scan(&id, &ownerID, &s.Name, &species, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, subject.ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to scan subject: %w", err)
	}

	s.ID = shared.SubjectID(id)
	s.OwnerID = shared.UserID(ownerID)
	s.Species = subject.Species(species)

	return &s, nil
}
