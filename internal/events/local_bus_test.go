package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusDelivers(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Event
	require.NoError(t, bus.Subscribe(ctx, StreamEntity, func(e Event) { got = append(got, e) }))
	require.NoError(t, bus.Publish(context.Background(), StreamEntity, Event{Type: EventEntityCreated}))
	require.NoError(t, bus.Publish(context.Background(), "other", Event{Type: EventEntityUpdated}))

	require.Len(t, got, 1)
	assert.Equal(t, EventEntityCreated, got[0].Type)
}

func TestLocalBusUnsubscribesOnCancel(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, StreamEntity, func(Event) {}))
	cancel()

	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.handlers[StreamEntity]) == 0
	}, time.Second, 5*time.Millisecond)
}
