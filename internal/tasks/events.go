package tasks

import (
	"sync"
	"time"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

// EventType classifies messages emitted while tasks move through their lifecycle.
type EventType string

const (
	EventTypeSubmitted EventType = "submitted"
	EventTypeStatus    EventType = "status"
	EventTypeProgress  EventType = "progress"
	EventTypeResult    EventType = "result"
	EventTypeError     EventType = "error"
	EventTypeEvicted   EventType = "evicted"
)

// Event is a sequenced payload consumed by UI and websocket subscribers.
type Event struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	TaskID    string           `json:"taskId"`
	Type      EventType        `json:"type"`
	State     domain.TaskState `json:"state,omitempty"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message,omitempty"`
}

// EventBus stores recent events, provides incremental reads and fans new
// events out to live subscribers.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	subscribers map[int]chan Event
	nextSub     int
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[int]chan Event),
	}
}

// Publish appends one event and assigns sequence and timestamp. Subscribers
// that are not keeping up miss the event; they can catch up with Since.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a live listener. The returned function unregisters it
// and closes the channel.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, buffer)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
