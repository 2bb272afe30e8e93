// Package eventhandler содержит обработчики доменных событий.
// Обработчики - "реактивная" часть системы: они запускают побочные
// эффекты (инвалидация кеша, аудит) после того, как состояние уже
// зафиксировано в хранилище.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Обрабатывает события, меняющие прогресс пользователя.
//
// Снимок статистики кешируется, поэтому любое событие прогресса
// (запись, достижение, штраф, челлендж, уровень, монеты) делает
// кешированный снимок устаревшим. Обработчик его инвалидирует,
// следующий запрос статистики соберёт свежий.
// ═══════════════════════════════════════════════════════════════════════════

// SnapshotInvalidator инвалидирует кешированный снимок пользователя.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// OnProgressChangedHandler инвалидирует снимок статистики при изменении прогресса.
type OnProgressChangedHandler struct {
	invalidator SnapshotInvalidator
	logger      *slog.Logger
}

// NewOnProgressChangedHandler создаёт обработчик.
func NewOnProgressChangedHandler(invalidator SnapshotInvalidator, logger *slog.Logger) *OnProgressChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnProgressChangedHandler{
		invalidator: invalidator,
		logger:      logger,
	}
}

// progressEventTypes - события, после которых снимок устаревает.
var progressEventTypes = []shared.EventType{
	shared.EventEntryLogged,
	shared.EventStreakUpdated,
	shared.EventStreakBroken,
	shared.EventAchievementUnlocked,
	shared.EventAchievementPenalized,
	shared.EventChallengeCompleted,
	shared.EventLevelUp,
	shared.EventCoinsCredited,
	shared.EventCoinsDebited,
}

// Register подписывает обработчик на все события прогресса.
func (h *OnProgressChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, eventType := range progressEventTypes {
		if err := bus.Subscribe(eventType, h.Handle); err != nil {
			return fmt.Errorf("eventhandler: failed to subscribe to %s: %w", eventType, err)
		}
	}
	return nil
}

// Handle инвалидирует снимок пользователя из события.
// AggregateID всех событий прогресса - идентификатор пользователя.
func (h *OnProgressChangedHandler) Handle(ctx context.Context, event shared.Event) error {
	userID := event.AggregateID()
	if userID == "" {
		return nil
	}

	if err := h.invalidator.Invalidate(ctx, userID); err != nil {
		h.logger.Warn("failed to invalidate stats snapshot",
			"user_id", userID,
			"event_type", event.EventType(),
			"error", err,
		)
		return err
	}

	h.logger.Debug("stats snapshot invalidated",
		"user_id", userID,
		"event_type", event.EventType(),
	)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT LOG HANDLER
// Пишет каждое доменное событие в структурированный лог.
// ═══════════════════════════════════════════════════════════════════════════

// AuditLogHandler логирует все доменные события.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler создаёт обработчик аудита.
func NewAuditLogHandler(logger *slog.Logger) *AuditLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogHandler{logger: logger}
}

// Register подписывает обработчик на все события.
func (h *AuditLogHandler) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(h.Handle)
}

// Handle логирует событие.
func (h *AuditLogHandler) Handle(_ context.Context, event shared.Event) error {
	h.logger.Info("domain event",
		"event_type", event.EventType(),
		"aggregate_id", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
		"payload", event.Payload(),
	)
	return nil
}
