package events

// EventKind represents the type of domain event produced after persistence.
type EventKind string

const (
	EventConcertCreated EventKind = "concert_created"
)

// Event carries only IDs; consumers load the full record from storage.
type Event struct {
	Kind      EventKind
	ConcertID string
	ChatID    int64
}

// Bus is a lightweight in-process pub-sub implementation backed by a buffered channel.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish attempts to enqueue the event without blocking.
// Returns true if published, false if the buffer is full.
func (b *Bus) Publish(evt Event) bool {
	select {
	case b.ch <- evt:
		return true
	default:
		return false
	}
}

// Subscribe returns a read-only channel for consumers.
func (b *Bus) Subscribe() <-chan Event {
	return b.ch
}
