package rewards

import (
	"context"
	"errors"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ErrStateNotFound - состояние наград пользователя не найдено.
var ErrStateNotFound = errors.New("rewards state not found")

// StateRepository определяет контракт хранилища состояний наград.
type StateRepository interface {
	// Get возвращает состояние пользователя.
	// Возвращает ErrStateNotFound, если состояния ещё нет.
	Get(ctx context.Context, userID shared.UserID) (*State, error)

	// Upsert сохраняет состояние (по ключу user_id).
	Upsert(ctx context.Context, s *State) error
}
