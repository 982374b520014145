package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "2"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "3"})

	events := bus.Since(1)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
}

func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	ch, cancel := bus.Subscribe(1)

	bus.Publish(Event{TaskID: "a", Type: EventTypeProgress})
	// Buffer is full; the second event is dropped for this subscriber.
	bus.Publish(Event{TaskID: "b", Type: EventTypeProgress})

	got := <-ch
	assert.Equal(t, "a", got.TaskID)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	bus.Publish(Event{TaskID: "c"})
	assert.Len(t, bus.Since(0), 3)
}
