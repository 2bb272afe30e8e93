package challenge

import (
	"context"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// DefinitionRepository определяет контракт справочника челленджей.
type DefinitionRepository interface {
	// ListDefinitions возвращает все определения челленджей.
	ListDefinitions(ctx context.Context) ([]Definition, error)

	// ListActiveDefinitions возвращает определения, чьё окно содержит
	// момент at (границы окна - календарные дни UTC; точное попадание
	// проверяется трекером в поясе питомца).
	ListActiveDefinitions(ctx context.Context, at time.Time) ([]Definition, error)

	// GetDefinition возвращает определение по идентификатору.
	// Возвращает ErrDefinitionNotFound, если определения нет.
	GetDefinition(ctx context.Context, id string) (Definition, error)
}

// Repository определяет контракт хранилища прогресса пользователей.
type Repository interface {
	// GetByUser возвращает все строки прогресса пользователя.
	GetByUser(ctx context.Context, userID shared.UserID) ([]*UserChallenge, error)

	// Upsert сохраняет строку прогресса (по ключу (user_id, challenge_id)).
	// Выполненная строка в хранилище никогда не возвращается
	// в невыполненное состояние.
	Upsert(ctx context.Context, uc *UserChallenge) error
}

// ByID индексирует строки прогресса по идентификатору определения.
func ByID(rows []*UserChallenge) map[string]*UserChallenge {
	m := make(map[string]*UserChallenge, len(rows))
	for _, row := range rows {
		m[row.ChallengeID] = row
	}
	return m
}
