package notify

import (
	"context"
	"sync"
)

// Handler receives every event published on a Bus.
type Handler func(topic string, event interface{})

// Bus is an in-process Notifier that fans events out to registered
// handlers. It backs the websocket gateway: the engine publishes onto
// the bus and the gateway relays matching topics to connected clients.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish implements Notifier. Handlers run synchronously in
// registration order; a handler must not block.
func (b *Bus) Publish(_ context.Context, topic string, event interface{}) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(topic, event)
	}
	return nil
}

var _ Notifier = (*Bus)(nil)
