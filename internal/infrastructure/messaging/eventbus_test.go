package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	})
}

func TestPublish_DeliversToTypedSubscriber(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var received []shared.Event
	err := bus.Subscribe(shared.EventEntryLogged, func(_ context.Context, e shared.Event) error {
		received = append(received, e)
		return nil
	})
	assert.NoError(t, err)

	ev := shared.EntryLoggedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventEntryLogged, "user-1"),
		EntryID:   "e-1",
	}
	assert.NoError(t, bus.Publish(context.Background(), ev))

	assert.Len(t, received, 1)
	assert.Equal(t, shared.EventEntryLogged, received[0].EventType())
	assert.Equal(t, "user-1", received[0].AggregateID())
}

func TestPublish_TypedSubscriberIgnoresOtherTypes(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	calls := 0
	_ = bus.Subscribe(shared.EventLevelUp, func(_ context.Context, _ shared.Event) error {
		calls++
		return nil
	})

	ev := shared.EntryLoggedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventEntryLogged, "user-1"),
	}
	assert.NoError(t, bus.Publish(context.Background(), ev))
	assert.Equal(t, 0, calls)
}

func TestPublish_SubscribeAllSeesEverything(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var types []shared.EventType
	_ = bus.SubscribeAll(func(_ context.Context, e shared.Event) error {
		types = append(types, e.EventType())
		return nil
	})

	_ = bus.Publish(context.Background(),
		shared.EntryLoggedEvent{BaseEvent: shared.NewBaseEvent(shared.EventEntryLogged, "user-1")},
		shared.LevelUpEvent{BaseEvent: shared.NewBaseEvent(shared.EventLevelUp, "user-1")},
	)

	assert.Equal(t, []shared.EventType{shared.EventEntryLogged, shared.EventLevelUp}, types)
}

func TestPublish_NilHandlerRejected(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventEntryLogged, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestPublish_AfterCloseFails(t *testing.T) {
	bus := syncBus()
	assert.NoError(t, bus.Close())

	err := bus.Publish(context.Background(),
		shared.EntryLoggedEvent{BaseEvent: shared.NewBaseEvent(shared.EventEntryLogged, "user-1")})
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventEntryLogged, func(_ context.Context, _ shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestPublish_AsyncModeDelivers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
	})

	var mu sync.Mutex
	received := 0
	done := make(chan struct{})
	_ = bus.Subscribe(shared.EventEntryLogged, func(_ context.Context, _ shared.Event) error {
		mu.Lock()
		received++
		if received == 5 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		assert.NoError(t, bus.Publish(context.Background(),
			shared.EntryLoggedEvent{BaseEvent: shared.NewBaseEvent(shared.EventEntryLogged, "user-1")}))
	}

	<-done
	assert.NoError(t, bus.Close())
}

func TestMetrics_CountsPublishesAndFailures(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	_ = bus.Subscribe(shared.EventEntryLogged, func(_ context.Context, _ shared.Event) error {
		return errors.New("handler broke")
	})

	// Sync mode surfaces no handler error to the publisher; it is recorded.
	_ = bus.Publish(context.Background(),
		shared.EntryLoggedEvent{BaseEvent: shared.NewBaseEvent(shared.EventEntryLogged, "user-1")})

	snap := bus.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap.TotalPublished)
	assert.EqualValues(t, 1, snap.TotalHandlerExecs)
	assert.Equal(t, 0.0, snap.HandlerSuccessRate)
}
