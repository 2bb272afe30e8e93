package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEDGER QUERY
// Возвращает историю движений монет пользователя. Леджер - аудиторский
// след системы наград: баланс всегда равен сумме его записей.
// ══════════════════════════════════════════════════════════════════════════════

// GetLedgerQuery содержит параметры запроса леджера.
type GetLedgerQuery struct {
	// UserID - идентификатор пользователя.
	UserID string

	// Limit - максимум записей (по умолчанию 50, максимум 500).
	Limit int
}

// Validate проверяет корректность параметров.
func (q *GetLedgerQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_ledger: user_id is required")
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	return nil
}

// LedgerEntryDTO - одна запись леджера для отображения.
type LedgerEntryDTO struct {
	// ID - идентификатор записи.
	ID string `json:"id"`

	// Amount - сумма со знаком.
	Amount int `json:"amount"`

	// Reason - причина движения.
	Reason string `json:"reason"`

	// SourceID - идентификатор источника.
	SourceID string `json:"source_id"`

	// CreatedAt - время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// LedgerDTO - история движений с текущим балансом.
type LedgerDTO struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// Balance - текущий баланс (сумма всех записей).
	Balance int `json:"balance"`

	// Entries - записи от новых к старым.
	Entries []LedgerEntryDTO `json:"entries"`

	// TotalCount - всего записей у пользователя.
	TotalCount int `json:"total_count"`
}

// GetLedgerHandler обрабатывает GetLedgerQuery.
type GetLedgerHandler struct {
	ledger *rewards.Ledger
}

// NewGetLedgerHandler создаёт обработчик.
func NewGetLedgerHandler(ledger *rewards.Ledger) *GetLedgerHandler {
	return &GetLedgerHandler{ledger: ledger}
}

// Handle выполняет запрос леджера.
func (h *GetLedgerHandler) Handle(ctx context.Context, q GetLedgerQuery) (*LedgerDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}

	entries, err := h.ledger.Entries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_ledger: failed to load entries: %w", err)
	}

	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_ledger: failed to compute balance: %w", err)
	}

	dto := &LedgerDTO{
		UserID:     userID.String(),
		Balance:    balance.Int(),
		TotalCount: len(entries),
		Entries:    make([]LedgerEntryDTO, 0, q.Limit),
	}

	for i, e := range entries {
		if i >= q.Limit {
			break
		}
		dto.Entries = append(dto.Entries, LedgerEntryDTO{
			ID:        e.ID,
			Amount:    e.Amount,
			Reason:    string(e.Reason),
			SourceID:  e.SourceID,
			CreatedAt: e.CreatedAt,
		})
	}

	return dto, nil
}
