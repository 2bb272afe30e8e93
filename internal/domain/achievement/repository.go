package achievement

import (
	"context"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// DefinitionRepository определяет контракт справочника определений.
// Определения - неизменяемые справочные данные, загружаемые извне.
type DefinitionRepository interface {
	// ListDefinitions возвращает все определения достижений.
	ListDefinitions(ctx context.Context) ([]Definition, error)

	// GetDefinition возвращает определение по идентификатору.
	// Возвращает ErrDefinitionNotFound, если определения нет.
	GetDefinition(ctx context.Context, id string) (Definition, error)
}

// Repository определяет контракт хранилища прогресса пользователей.
type Repository interface {
	// GetByUser возвращает все строки прогресса пользователя.
	GetByUser(ctx context.Context, userID shared.UserID) ([]*UserAchievement, error)

	// Upsert сохраняет строку прогресса (создаёт или обновляет по ключу
	// (user_id, achievement_id)). Разблокированная строка в хранилище
	// никогда не возвращается в заблокированное состояние.
	Upsert(ctx context.Context, ua *UserAchievement) error
}

// ByID индексирует строки прогресса по идентификатору определения.
func ByID(rows []*UserAchievement) map[string]*UserAchievement {
	m := make(map[string]*UserAchievement, len(rows))
	for _, row := range rows {
		m[row.AchievementID] = row
	}
	return m
}
