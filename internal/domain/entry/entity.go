// Package entry содержит доменную модель журнала записей (Event Log).
// Журнал - единственный источник истины для всей производной статистики:
// записи только добавляются и никогда не изменяются.
package entry

import (
	"errors"
	"strings"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Consistency представляет консистенцию стула в записи.
type Consistency string

const (
	// ConsistencySolid - нормальный, оформленный.
	ConsistencySolid Consistency = "solid"
	// ConsistencySoft - мягкий.
	ConsistencySoft Consistency = "soft"
	// ConsistencyLoose - жидковатый.
	ConsistencyLoose Consistency = "loose"
	// ConsistencyWatery - водянистый.
	ConsistencyWatery Consistency = "watery"
)

// IsValid проверяет, что значение консистенции корректно.
func (c Consistency) IsValid() bool {
	switch c {
	case ConsistencySolid, ConsistencySoft, ConsistencyLoose, ConsistencyWatery:
		return true
	default:
		return false
	}
}

// Color представляет цвет в записи.
type Color string

const (
	ColorBrown     Color = "brown"
	ColorDarkBrown Color = "dark_brown"
	ColorYellow    Color = "yellow"
	ColorGreen     Color = "green"
	ColorBlack     Color = "black"
	ColorRed       Color = "red"
	ColorWhite     Color = "white"
)

// IsValid проверяет, что значение цвета корректно.
func (c Color) IsValid() bool {
	switch c {
	case ColorBrown, ColorDarkBrown, ColorYellow, ColorGreen, ColorBlack, ColorRed, ColorWhite:
		return true
	default:
		return false
	}
}

// Имена атрибутов записи. Используются правилами типа
// SPECIFIC_ATTRIBUTE_COUNT для адресации значений в статистике.
const (
	AttrConsistency = "consistency"
	AttrColor       = "color"
	AttrLocation    = "location"
)

// Attributes содержит атрибуты одной записи журнала.
type Attributes struct {
	// Consistency - консистенция (обязательный атрибут).
	Consistency Consistency

	// Color - цвет (обязательный атрибут).
	Color Color

	// Location - место (опционально, свободный текст).
	Location string

	// Notes - заметки владельца (опционально).
	Notes string
}

// Validate проверяет корректность атрибутов.
func (a Attributes) Validate() error {
	if !a.Consistency.IsValid() {
		return ErrInvalidConsistency
	}
	if !a.Color.IsValid() {
		return ErrInvalidColor
	}
	if len(a.Location) > 100 {
		return ErrLocationTooLong
	}
	if len(a.Notes) > 500 {
		return ErrNotesTooLong
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidConsistency - невалидная консистенция.
	ErrInvalidConsistency = errors.New("invalid consistency value")

	// ErrInvalidColor - невалидный цвет.
	ErrInvalidColor = errors.New("invalid color value")

	// ErrLocationTooLong - слишком длинное место.
	ErrLocationTooLong = errors.New("location must be at most 100 chars")

	// ErrNotesTooLong - слишком длинные заметки.
	ErrNotesTooLong = errors.New("notes must be at most 500 chars")

	// ErrInvalidOccurredAt - невалидное время записи.
	ErrInvalidOccurredAt = errors.New("occurred_at is required")

	// ErrEntryNotFound - запись не найдена.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrDuplicateEntry - запись с таким ключом идемпотентности уже есть.
	ErrDuplicateEntry = errors.New("entry already recorded")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - одна неизменяемая запись журнала. После добавления запись
// никогда не мутируется и не удаляется.
type Entry struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// SubjectID - идентификатор питомца.
	SubjectID shared.SubjectID

	// OccurredAt - когда событие произошло (локальное время питомца,
	// хранится с зоной).
	OccurredAt time.Time

	// Attributes - атрибуты записи.
	Attributes Attributes

	// IdempotencyKey - клиентский ключ идемпотентности.
	// Повторная отправка с тем же ключом не создаёт вторую запись.
	IdempotencyKey string

	// CreatedAt - когда запись была добавлена в журнал.
	CreatedAt time.Time
}

// NewEntryParams содержит параметры для создания новой записи.
type NewEntryParams struct {
	ID             string
	SubjectID      shared.SubjectID
	OccurredAt     time.Time
	Attributes     Attributes
	IdempotencyKey string
	Now            time.Time
}

// NewEntry создаёт новую запись с валидацией всех полей.
// Записи из будущего отклоняются: журнал фиксирует произошедшее.
func NewEntry(params NewEntryParams) (*Entry, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, shared.ErrEmptyValue
	}

	if !params.SubjectID.IsValid() {
		return nil, shared.ErrInvalidSubjectID
	}

	if params.OccurredAt.IsZero() {
		return nil, ErrInvalidOccurredAt
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if params.OccurredAt.After(now) {
		return nil, shared.ErrFutureTimestamp
	}

	if err := params.Attributes.Validate(); err != nil {
		return nil, err
	}

	return &Entry{
		ID:             params.ID,
		SubjectID:      params.SubjectID,
		OccurredAt:     params.OccurredAt,
		Attributes:     params.Attributes,
		IdempotencyKey: strings.TrimSpace(params.IdempotencyKey),
		CreatedAt:      now,
	}, nil
}

// AttributeValue возвращает значение атрибута по имени.
// Пустая строка означает, что атрибут не задан.
func (e *Entry) AttributeValue(name string) string {
	switch name {
	case AttrConsistency:
		return string(e.Attributes.Consistency)
	case AttrColor:
		return string(e.Attributes.Color)
	case AttrLocation:
		return e.Attributes.Location
	default:
		return ""
	}
}
