// Package subject содержит доменную модель отслеживаемого питомца.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package subject

import (
	"errors"
	"strings"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
	"github.com/pawlog-hub/pawlog-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Species представляет вид питомца.
type Species string

const (
	// SpeciesDog - собака.
	SpeciesDog Species = "dog"
	// SpeciesCat - кошка.
	SpeciesCat Species = "cat"
	// SpeciesOther - другой вид.
	SpeciesOther Species = "other"
)

// IsValid проверяет, что вид корректен.
func (s Species) IsValid() bool {
	switch s {
	case SpeciesDog, SpeciesCat, SpeciesOther:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidName - невалидное имя питомца.
	ErrInvalidName = errors.New("invalid subject name: must be 1-50 chars")

	// ErrInvalidSpecies - невалидный вид питомца.
	ErrInvalidSpecies = errors.New("invalid subject species")

	// ErrSubjectNotFound - питомец не найден.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrSubjectAlreadyExists - питомец уже существует.
	ErrSubjectAlreadyExists = errors.New("subject already exists")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SUBJECT
// ══════════════════════════════════════════════════════════════════════════════

// Subject - отслеживаемый питомец, для которого ведётся журнал записей.
// Все вычисления календарных дней (серии, окна челленджей) выполняются
// в часовом поясе питомца.
type Subject struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID shared.SubjectID

	// OwnerID - идентификатор владельца.
	OwnerID shared.UserID

	// Name - имя питомца.
	Name string

	// Species - вид питомца.
	Species Species

	// Timezone - часовой пояс питомца (IANA, например "Europe/Berlin").
	// Определяет границы календарного дня для серий и окон челленджей.
	Timezone string

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewSubjectParams содержит параметры для создания нового питомца.
type NewSubjectParams struct {
	ID       shared.SubjectID
	OwnerID  shared.UserID
	Name     string
	Species  Species
	Timezone string
}

// NewSubject создаёт нового питомца с валидацией всех полей.
func NewSubject(params NewSubjectParams) (*Subject, error) {
	if !params.ID.IsValid() {
		return nil, shared.ErrInvalidSubjectID
	}

	if !params.OwnerID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}

	name := strings.TrimSpace(params.Name)
	if len(name) == 0 || len(name) > 50 {
		return nil, ErrInvalidName
	}

	if !params.Species.IsValid() {
		return nil, ErrInvalidSpecies
	}

	now := time.Now().UTC()

	return &Subject{
		ID:        params.ID,
		OwnerID:   params.OwnerID,
		Name:      name,
		Species:   params.Species,
		Timezone:  params.Timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Location возвращает часовой пояс питомца.
// При пустом или неизвестном значении используется UTC.
func (s *Subject) Location() *time.Location {
	return timeutil.LoadLocation(s.Timezone)
}

// Clone создаёт копию питомца.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
