package subject

import (
	"context"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// Repository определяет контракт хранилища питомцев.
type Repository interface {
	// Create создаёт нового питомца.
	// Возвращает ErrSubjectAlreadyExists, если ID уже занят.
	Create(ctx context.Context, s *Subject) error

	// GetByID возвращает питомца по идентификатору.
	// Возвращает ErrSubjectNotFound, если питомец не найден.
	GetByID(ctx context.Context, id shared.SubjectID) (*Subject, error)

	// GetByOwner возвращает всех питомцев владельца (от старых к новым).
	GetByOwner(ctx context.Context, ownerID shared.UserID) ([]*Subject, error)

	// ListOwners возвращает идентификаторы всех владельцев,
	// у которых есть хотя бы один питомец. Используется фоновыми задачами.
	ListOwners(ctx context.Context) ([]shared.UserID, error)
}
