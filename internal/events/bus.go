package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives emitted events. Handlers run on the emitting goroutine and must not block.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus fans events out to subscribers
type Bus struct {
	mu     sync.RWMutex
	byType map[EventType][]subscription
	all    []subscription
	nextID int
	log    zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		byType: make(map[EventType][]subscription),
		log:    log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type and returns a function removing it
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.byType[eventType] = append(b.byType[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[eventType] = remove(b.byType[eventType], id)
	}
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

// Publish delivers an event to its subscribers. A panicking handler is logged and skipped.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.byType[event.Type])+len(b.all))
	targets = append(targets, b.byType[event.Type]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	sub.handler(event)
}

func remove(subs []subscription, id int) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
