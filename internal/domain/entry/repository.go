package entry

import (
	"context"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// Repository определяет контракт хранилища журнала записей.
// Хранилище строго append-only: обновление и удаление не предусмотрены.
type Repository interface {
	// Append добавляет запись в журнал.
	// Возвращает ErrDuplicateEntry, если запись с той же парой
	// (subject_id, idempotency_key) уже существует.
	Append(ctx context.Context, e *Entry) error

	// GetByIdempotencyKey возвращает запись по ключу идемпотентности.
	// Возвращает ErrEntryNotFound, если записи нет.
	GetByIdempotencyKey(ctx context.Context, subjectID shared.SubjectID, key string) (*Entry, error)

	// ListBySubject возвращает все записи питомца в порядке occurred_at.
	ListBySubject(ctx context.Context, subjectID shared.SubjectID) ([]*Entry, error)

	// ListBySubjectBetween возвращает записи питомца
	// с occurred_at в интервале [from, to].
	ListBySubjectBetween(ctx context.Context, subjectID shared.SubjectID, from, to time.Time) ([]*Entry, error)

	// LastBySubject возвращает последнюю по occurred_at запись питомца.
	// Возвращает ErrEntryNotFound, если журнал пуст.
	LastBySubject(ctx context.Context, subjectID shared.SubjectID) (*Entry, error)
}
