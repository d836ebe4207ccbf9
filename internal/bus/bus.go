// Package bus provides the in-process domain event bus.
package bus

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/craterhq/crater/pkg/models"
)

// Handler consumes a domain event. Handlers run synchronously on the
// publisher's goroutine and must not perform long I/O inline; hand off to
// your own async mechanism instead.
type Handler func(event models.DomainEvent)

// Bus delivers domain events to in-process subscribers, at least once.
// A failing subscriber is isolated: its panic is logged and the remaining
// subscribers still receive the event.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler. Intended to be called at startup,
// before events flow.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscriber in registration order.
func (b *Bus) Publish(event models.DomainEvent) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event models.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked",
				"error", r,
				"kind", event.Kind,
				"issue_id", event.IssueID,
				"stack", string(debug.Stack()),
			)
		}
	}()
	h(event)
}
