package rewards

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// Reason - причина движения монет.
type Reason string

const (
	// ReasonAchievement - начисление или штраф за достижение.
	ReasonAchievement Reason = "achievement"
	// ReasonChallenge - начисление за выполненный челлендж.
	ReasonChallenge Reason = "challenge"
	// ReasonRedemption - списание за покупку в магазине наград.
	ReasonRedemption Reason = "redemption"
)

// IsValid проверяет, что причина известна.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonAchievement, ReasonChallenge, ReasonRedemption:
		return true
	default:
		return false
	}
}

// LedgerEntry - одна запись леджера. Записи только добавляются:
// ровно одна на факт (разблокировка, списание), без изменений и удалений.
type LedgerEntry struct {
	// ID - идентификатор записи (UUID в строковом формате).
	ID string

	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// Amount - сумма со знаком: положительная для начислений,
	// отрицательная для списаний.
	Amount int

	// Reason - причина движения.
	Reason Reason

	// SourceID - идентификатор источника (достижение, челлендж, покупка).
	// Тройка (user_id, reason, source_id) - ключ идемпотентности.
	SourceID string

	// CreatedAt - время создания записи.
	CreatedAt time.Time
}

var (
	// ErrLedgerEntryNotFound - запись леджера не найдена.
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	// ErrInvalidAmount - сумма операции должна быть положительной.
	ErrInvalidAmount = errors.New("ledger amount must be positive")

	// ErrInvalidReason - неизвестная причина движения.
	ErrInvalidReason = errors.New("invalid ledger reason")

	// ErrInvalidSourceID - пустой идентификатор источника.
	ErrInvalidSourceID = errors.New("ledger source id is required")
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER STORE CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// LedgerStore определяет контракт хранилища записей леджера.
// Хранилище обязано поддерживать уникальность тройки
// (user_id, reason, source_id).
type LedgerStore interface {
	// Get возвращает запись по ключу идемпотентности.
	// Возвращает ErrLedgerEntryNotFound, если записи нет.
	Get(ctx context.Context, userID shared.UserID, reason Reason, sourceID string) (*LedgerEntry, error)

	// Append добавляет запись. Возвращает shared.ErrAlreadyExists,
	// если тройка идемпотентности уже занята.
	Append(ctx context.Context, e *LedgerEntry) error

	// SumByUser возвращает сумму Amount всех записей пользователя.
	SumByUser(ctx context.Context, userID shared.UserID) (int, error)

	// ListByUser возвращает записи пользователя от новых к старым.
	ListByUser(ctx context.Context, userID shared.UserID) ([]*LedgerEntry, error)
}

// IDGenerator выдаёт идентификаторы для новых записей леджера.
// Инжектируется, чтобы доменный слой не зависел от конкретной библиотеки.
type IDGenerator func() string

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger - доменный сервис движений монет поверх LedgerStore.
//
// Обе операции идемпотентны по тройке (user_id, reason, source_id):
// повтор того же начисления или списания возвращает существующую запись
// вместо создания дубликата.
type Ledger struct {
	store LedgerStore
	newID IDGenerator
	clock shared.Clock
}

// NewLedger создаёт леджер.
func NewLedger(store LedgerStore, newID IDGenerator, clock shared.Clock) *Ledger {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Ledger{store: store, newID: newID, clock: clock}
}

// Credit начисляет amount монет. Начисление всегда успешно.
// Возвращает запись и признак того, что она создана этим вызовом
// (false - повтор, возвращена прежняя запись).
func (l *Ledger) Credit(ctx context.Context, userID shared.UserID, amount shared.Coins, reason Reason, sourceID string) (*LedgerEntry, bool, error) {
	if err := validateOp(userID, amount, reason, sourceID); err != nil {
		return nil, false, err
	}

	if prior, err := l.store.Get(ctx, userID, reason, sourceID); err == nil {
		return prior, false, nil
	} else if !errors.Is(err, ErrLedgerEntryNotFound) {
		return nil, false, err
	}

	e := &LedgerEntry{
		ID:        l.newID(),
		UserID:    userID,
		Amount:    amount.Int(),
		Reason:    reason,
		SourceID:  sourceID,
		CreatedAt: l.clock(),
	}

	if err := l.store.Append(ctx, e); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Гонка на уникальном ключе: возвращаем запись победителя.
			return l.replay(ctx, userID, reason, sourceID)
		}
		return nil, false, err
	}

	return e, true, nil
}

// Debit списывает amount монет. Возвращает shared.ErrInsufficientFunds,
// если amount превышает текущий баланс; запись при этом не создаётся
// и баланс не меняется. Проверка баланса и запись обязаны выполняться
// в одной сериализованной области (per-user lock плюс транзакция).
func (l *Ledger) Debit(ctx context.Context, userID shared.UserID, amount shared.Coins, reason Reason, sourceID string) (*LedgerEntry, bool, error) {
	if err := validateOp(userID, amount, reason, sourceID); err != nil {
		return nil, false, err
	}

	if prior, err := l.store.Get(ctx, userID, reason, sourceID); err == nil {
		return prior, false, nil
	} else if !errors.Is(err, ErrLedgerEntryNotFound) {
		return nil, false, err
	}

	balance, err := l.store.SumByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if amount.Int() > balance {
		return nil, false, shared.ErrInsufficientFunds
	}

	e := &LedgerEntry{
		ID:        l.newID(),
		UserID:    userID,
		Amount:    -amount.Int(),
		Reason:    reason,
		SourceID:  sourceID,
		CreatedAt: l.clock(),
	}

	if err := l.store.Append(ctx, e); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return l.replay(ctx, userID, reason, sourceID)
		}
		return nil, false, err
	}

	return e, true, nil
}

// Balance возвращает баланс пользователя как сумму записей леджера.
func (l *Ledger) Balance(ctx context.Context, userID shared.UserID) (shared.Coins, error) {
	sum, err := l.store.SumByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if sum < 0 {
		// Инвариант хранилища нарушен; защищаемся от отрицательного баланса.
		sum = 0
	}
	return shared.Coins(sum), nil
}

// Entries возвращает записи пользователя от новых к старым.
func (l *Ledger) Entries(ctx context.Context, userID shared.UserID) ([]*LedgerEntry, error) {
	return l.store.ListByUser(ctx, userID)
}

func (l *Ledger) replay(ctx context.Context, userID shared.UserID, reason Reason, sourceID string) (*LedgerEntry, bool, error) {
	prior, err := l.store.Get(ctx, userID, reason, sourceID)
	if err != nil {
		return nil, false, err
	}
	return prior, false, nil
}

func validateOp(userID shared.UserID, amount shared.Coins, reason Reason, sourceID string) error {
	if !userID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if !reason.IsValid() {
		return ErrInvalidReason
	}
	if strings.TrimSpace(sourceID) == "" {
		return ErrInvalidSourceID
	}
	return nil
}
